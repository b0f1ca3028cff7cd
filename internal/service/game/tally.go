package game

import "sort"

// TallyResult 是一次计票的完整结论
type TallyResult struct {
	// 各目标的有效得票数
	Counts map[string]int
	// 得票降序、同票按名字升序
	Ranked []string
	// 唯一最高票者，平票时为空
	Eliminated string
	// 并列最高票者，名字升序；未平票时为空
	Tied []string
	// 弃票者（调用失败或投出无效票）
	Abstained []string
}

// TallyVotes 统计一组选票。结果只由选票内容决定，
// 与入参顺序无关。一张有效票都没有时视为 alive 全员平票，
// 保证流程始终能推进到加赛或兜底淘汰。
func TallyVotes(votes []VoteRecord, alive []string) TallyResult {
	counts := make(map[string]int)

	var abstained []string

	for _, v := range votes {
		if v.Abstained || v.Target == "" {
			abstained = append(abstained, v.Voter)
			continue
		}

		counts[v.Target]++
	}

	sort.Strings(abstained)

	result := TallyResult{
		Counts:    counts,
		Abstained: abstained,
	}

	if len(counts) == 0 {
		result.Tied = append([]string{}, alive...)
		sort.Strings(result.Tied)

		return result
	}

	ranked := make([]string, 0, len(counts))
	for name := range counts {
		ranked = append(ranked, name)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}

		return ranked[i] < ranked[j]
	})

	result.Ranked = ranked

	top := counts[ranked[0]]

	var tied []string
	for _, name := range ranked {
		if counts[name] == top {
			tied = append(tied, name)
		}
	}

	if len(tied) == 1 {
		result.Eliminated = tied[0]
	} else {
		result.Tied = tied
	}

	return result
}
