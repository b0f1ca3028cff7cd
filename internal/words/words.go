package words

import (
	"encoding/json"
	"math/rand/v2"
	"os"

	"go.uber.org/zap"
)

// 词库文件格式：{"word_pairs": [{"civilian": "...", "spy": "..."}]}
type WordPair struct {
	Civilian string `json:"civilian"`
	Spy      string `json:"spy"`
}

type Store struct {
	pairs []WordPair
}

// LoadStore 加载词库文件。文件缺失或损坏时返回空词库，
// 抽词时会退回到默认词对，不会中断启动。
func LoadStore(path string) *Store {
	data, err := os.ReadFile(path)
	if err != nil {
		zap.S().Warnf("词库文件不存在: %s", path)
		return &Store{}
	}

	var parsed struct {
		WordPairs []WordPair `json:"word_pairs"`
	}

	if err := json.Unmarshal(data, &parsed); err != nil {
		zap.S().Errorf("词库文件解析错误: %v", err)
		return &Store{}
	}

	zap.S().Infof("词库加载成功，共 %d 组词对", len(parsed.WordPairs))

	return &Store{pairs: parsed.WordPairs}
}

func (s *Store) Len() int {
	return len(s.pairs)
}

func (s *Store) RandomPair() WordPair {
	if len(s.pairs) == 0 {
		zap.S().Warn("词库为空，使用默认词对")
		return WordPair{Civilian: "苹果", Spy: "梨"}
	}

	return s.pairs[rand.IntN(len(s.pairs))]
}

// SpyVariants 返回与给定平民词配对的全部卧底词。
// 用于每个卧底独立抽词的模式；词库中没有同平民词的
// 其他词对时，结果只含传入的卧底词本身。
func (s *Store) SpyVariants(civilian string, spy string) []string {
	variants := []string{spy}

	for _, pair := range s.pairs {
		if pair.Civilian != civilian || pair.Spy == spy {
			continue
		}

		variants = append(variants, pair.Spy)
	}

	return variants
}
