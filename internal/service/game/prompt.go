package game

import (
	"fmt"
	"strings"

	"who-is-spy-llm/internal/llm"
)

// 提示词只从 (会话, 玩家, 阶段) 三元组拼装，
// 任何时候都不包含其他玩家的身份或词语。

const civilianStrategy = `
【平民高玩法则】
1. **模糊的精确**：描述不能太白（会被卧底猜出），也不能太偏（会被队友误伤）。
2. **带节奏**：如果发现谁的发言很怪，下一轮可以用语言试探他，或者直接号召大家注意他。
3. **不要复读**：不要重复别人的描述，要有自己的新视角。
`

const spyStrategy = `
【卧底生存法则】
1. **随大流**：仔细听前几位平民的描述，如果不知道平民词，就给出一个万能模糊的描述（如"这东西很常见"）。
2. **偷天换日**：一旦推测出平民词是什么，立刻抛弃你的卧底词，全力假装你在描述平民词！
3. **制造混乱**：如果被怀疑，可以反咬一口，指责平民描述不清。
`

// 第一轮额外的描述约束
const firstRoundRule = `
【第一轮特别提醒】
现在是第一轮，禁止在描述里使用专有名词、地名或地标，先从最宽泛的特征说起。
`

func BuildSystemPrompt(p *Player) string {
	roleName := RoleDisplayName(p.Role)

	strategy := civilianStrategy
	if p.Role == ROLE_SPY {
		strategy = spyStrategy
	}

	return fmt.Sprintf(`你正在一场高水平的「谁是卧底」对局中。
场上玩家众多，不仅有平民，还有潜伏的卧底。

【你的档案】
---------------
名字：%s
身份：%s
关键令词：【%s】 <--- 绝对保密！
---------------
%s
【游戏铁律】
1. **禁止**直接说出令词。
2. 每轮发言必须是一句完整的、自然的话。
3. **拒绝 AI 腔**：请完全沉浸在角色中，用人类的口语、情绪、甚至口头禅。不要说"我的描述是..."，直接说出内容。
4. **互动**：时刻关注场上局势，你的发言应当是对上一位玩家的回应或对某人的质疑。

做好准备，发挥你的伪装和推理能力，活到最后！
`, p.Name, roleName, p.Word, strategy)
}

func BuildDescribePrompt(s *GameSession, p *Player) llm.Prompt {
	user := fmt.Sprintf(`
【聊天记录】
%s

【当前状态】
轮到：%s
当前存活玩家: %s
你的词语：【%s】（不能直接说出来！）

【任务】
轮到你发言了。
1. 先在心里想想：有没有人可疑？我该怎么描述？
2. 然后说一句自然的话给大家听。

【输出格式】
思考：(你的内心想法)
发言：(你的公开发言)
`, s.HistoryText(), p.Name, strings.Join(s.AliveOrder(), ", "), p.Word)

	if s.Round == 1 {
		user += firstRoundRule
	}

	return llm.Prompt{
		System: BuildSystemPrompt(p),
		User:   user,
	}
}

// BuildVotePrompt 的 candidates 不含投票者自己
func BuildVotePrompt(s *GameSession, p *Player, candidates []string) llm.Prompt {
	user := fmt.Sprintf(`
╔══════════════════════════════════════════════════════════════╗
║  🎮 投票阶段 - 找出卧底！                                     ║
╚══════════════════════════════════════════════════════════════╝

【本轮所有玩家的发言】
%s

🧠 **内部分析**（请认真推理）
1. 谁的描述最可疑？（太模糊？太具体？与众不同？）
2. 谁给人一种在"抄袭"别人描述的感觉？
3. 如果我是卧底，我会怀疑谁？（反向思考）

【候选人】
%s

【输出要求】
请严格按照以下 JSON 格式输出：
{
    "thinking": "简短分析每个可疑玩家（1-2句）",
    "content": "你最终投票的玩家名字"
}
`, s.CurrentRoundText(), strings.Join(candidates, ", "))

	return llm.Prompt{
		System:     BuildSystemPrompt(p),
		User:       user,
		Candidates: candidates,
	}
}

// BuildRevotePrompt 用在平票加赛。candidates 是平票者；
// debate 非空时附带他们的辩护发言。
func BuildRevotePrompt(s *GameSession, p *Player, candidates []string, debate string) llm.Prompt {
	var user string

	if debate != "" {
		user = fmt.Sprintf(`【辩论后投票】

以下是平票玩家的辩护：
%s

【候选人】
%s

请根据辩护内容，投票选择你认为更可能是卧底的人。
只输出玩家名字：`, debate, strings.Join(candidates, ", "))
	} else {
		user = fmt.Sprintf(`【平票加赛】

%s 票数相同，需要重新投票，只能从他们当中选择。

【本轮所有玩家的发言】
%s

【候选人】
%s

【输出要求】
请严格按照以下 JSON 格式输出：
{
    "thinking": "简短说明你的判断",
    "content": "你最终投票的玩家名字"
}
`, strings.Join(candidates, "、"), s.CurrentRoundText(), strings.Join(candidates, ", "))
	}

	return llm.Prompt{
		System:     BuildSystemPrompt(p),
		User:       user,
		Candidates: candidates,
	}
}

// BuildDebatePrompt 让平票者为自己辩护
func BuildDebatePrompt(s *GameSession, p *Player, opponents []string, maxLength int) llm.Prompt {
	opponent := "其他候选人"
	if len(opponents) == 1 {
		opponent = opponents[0]
	}

	user := fmt.Sprintf(`【平票辩论环节】

你和 %s 票数相同，现在你需要为自己辩护，证明你不是卧底。

【本轮所有玩家的发言】
%s

【辩护要求】
1. 解释你的描述为什么符合平民词
2. 指出对方描述的可疑之处
3. 说服其他玩家投票给对方而不是你
4. **辩护不能超过 %d 个字**
5. 只输出辩护内容

你的辩护：`, opponent, s.CurrentRoundText(), maxLength)

	return llm.Prompt{
		System: BuildSystemPrompt(p),
		User:   user,
	}
}

func BuildLastWordsPrompt(p *Player) llm.Prompt {
	user := `
💥 你被大家投票淘汰了！

请发表你的遗言（50字以内）：
- 如果你是平民被冤枉：表达愤怒或委屈！
- 如果你是卧底被抓：可以嘲讽或认输。

直接输出遗言内容，不需要格式。
`

	return llm.Prompt{
		System: BuildSystemPrompt(p),
		User:   user,
	}
}
