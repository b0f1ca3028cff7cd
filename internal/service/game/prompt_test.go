package game

import (
	"strings"
	"testing"
)

func promptSession(t *testing.T) *GameSession {
	t.Helper()

	sess, err := NewGameSession(SessionParams{
		Agents:       sevenAgents(),
		CivilianWord: "日记",
		SpyWord:      "笔记",
		SpyCount:     2,
	})
	if err != nil {
		t.Fatalf("session should be created, got: %v", err)
	}

	return sess
}

func firstWithRole(sess *GameSession, role string) *Player {
	for _, name := range sess.Order {
		if p := sess.Players[name]; p.Role == role {
			return p
		}
	}

	return nil
}

func TestBuildSystemPrompt_RevealsOnlyOwnSecrets(t *testing.T) {
	sess := promptSession(t)

	civilian := firstWithRole(sess, ROLE_CIVILIAN)
	spy := firstWithRole(sess, ROLE_SPY)

	civilianPrompt := BuildSystemPrompt(civilian)

	if !containsAll(civilianPrompt, civilian.Name, "【日记】", "平民高玩法则") {
		t.Fatalf("civilian prompt missing own profile:\n%s", civilianPrompt)
	}

	if strings.Contains(civilianPrompt, "笔记") || strings.Contains(civilianPrompt, "卧底生存法则") {
		t.Fatalf("civilian prompt leaks spy secrets:\n%s", civilianPrompt)
	}

	spyPrompt := BuildSystemPrompt(spy)

	if !containsAll(spyPrompt, spy.Name, "【笔记】", "卧底生存法则") {
		t.Fatalf("spy prompt missing own profile:\n%s", spyPrompt)
	}

	if strings.Contains(spyPrompt, "日记") || strings.Contains(spyPrompt, "平民高玩法则") {
		t.Fatalf("spy prompt leaks civilian word:\n%s", spyPrompt)
	}
}

func TestBuildDescribePrompt_FirstRoundRuleOnlyInRoundOne(t *testing.T) {
	sess := promptSession(t)
	civilian := firstWithRole(sess, ROLE_CIVILIAN)

	sess.BeginRound()

	prompt := BuildDescribePrompt(sess, civilian)
	if !strings.Contains(prompt.User, "第一轮特别提醒") {
		t.Fatalf("round 1 prompt should carry the opening-round rule:\n%s", prompt.User)
	}

	sess.BeginRound()

	prompt = BuildDescribePrompt(sess, civilian)
	if strings.Contains(prompt.User, "第一轮特别提醒") {
		t.Fatalf("round 2 prompt should drop the opening-round rule:\n%s", prompt.User)
	}
}

func TestBuildDescribePrompt_HidesOpposingWord(t *testing.T) {
	sess := promptSession(t)
	sess.BeginRound()

	spy := firstWithRole(sess, ROLE_SPY)

	prompt := BuildDescribePrompt(sess, spy)
	if !strings.Contains(prompt.User, "【笔记】") {
		t.Fatalf("spy should see own word:\n%s", prompt.User)
	}

	if strings.Contains(prompt.User, "日记") {
		t.Fatalf("spy must not see the civilian word:\n%s", prompt.User)
	}

	if !strings.Contains(prompt.User, "(这是第一轮)") {
		t.Fatalf("empty history marker missing:\n%s", prompt.User)
	}
}

func TestBuildVotePrompt_CarriesCandidates(t *testing.T) {
	sess := promptSession(t)
	sess.BeginRound()
	sess.RecordDescription("QWEN", "我每天都会翻开看看。")

	voter := sess.Players[sess.Order[0]]
	candidates := excludeName(sess.AliveOrder(), voter.Name)

	prompt := BuildVotePrompt(sess, voter, candidates)

	if len(prompt.Candidates) != len(candidates) {
		t.Fatalf("candidates not carried: %v", prompt.Candidates)
	}

	for _, c := range prompt.Candidates {
		if c == voter.Name {
			t.Fatalf("voter should not be a candidate: %v", prompt.Candidates)
		}
	}

	if !containsAll(prompt.User, "投票阶段", strings.Join(candidates, ", "), "【QWEN】: 我每天都会翻开看看。", `"thinking"`) {
		t.Fatalf("vote prompt malformed:\n%s", prompt.User)
	}
}

func TestBuildRevotePrompt_Variants(t *testing.T) {
	sess := promptSession(t)
	sess.BeginRound()

	voter := sess.Players[sess.Order[0]]
	tied := []string{"GLM", "KIMI"}

	plain := BuildRevotePrompt(sess, voter, tied, "")
	if !containsAll(plain.User, "平票加赛", "GLM、KIMI", `"thinking"`) {
		t.Fatalf("plain revote prompt malformed:\n%s", plain.User)
	}

	debated := BuildRevotePrompt(sess, voter, tied, "【GLM】: 我真的不是卧底。")
	if !containsAll(debated.User, "辩论后投票", "【GLM】: 我真的不是卧底。", "只输出玩家名字") {
		t.Fatalf("debate revote prompt malformed:\n%s", debated.User)
	}

	if strings.Contains(debated.User, "平票加赛") {
		t.Fatalf("debate variant should replace the plain header:\n%s", debated.User)
	}
}

func TestBuildDebatePrompt_NamesSingleOpponent(t *testing.T) {
	sess := promptSession(t)
	sess.BeginRound()

	p := sess.Players[sess.Order[0]]

	single := BuildDebatePrompt(sess, p, []string{"KIMI"}, 100)
	if !containsAll(single.User, "你和 KIMI 票数相同", "不能超过 100 个字") {
		t.Fatalf("single-opponent debate prompt malformed:\n%s", single.User)
	}

	many := BuildDebatePrompt(sess, p, []string{"KIMI", "GLM"}, 100)
	if !strings.Contains(many.User, "其他候选人") {
		t.Fatalf("multi-opponent debate prompt should fall back to a generic label:\n%s", many.User)
	}
}

func TestBuildLastWordsPrompt_AsksForFarewell(t *testing.T) {
	sess := promptSession(t)
	p := sess.Players[sess.Order[0]]

	prompt := BuildLastWordsPrompt(p)
	if !containsAll(prompt.User, "遗言", "50字") {
		t.Fatalf("last-words prompt malformed:\n%s", prompt.User)
	}

	if prompt.System == "" {
		t.Fatalf("last words still need the player profile as system prompt")
	}
}
