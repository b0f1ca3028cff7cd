package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"who-is-spy-llm/internal/service/game"
)

// Archiver 把落幕的对局写进 SQLite，并额外生成一份
// 人类可读的 markdown 战报。写入失败只影响归档，不影响对局。
type Archiver struct {
	db  *sql.DB
	dir string
}

func Open(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建归档目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "games.db"))
	if err != nil {
		return nil, fmt.Errorf("打开归档数据库失败: %w", err)
	}

	// 单写入方，连接多了反而容易撞锁
	db.SetMaxOpenConns(1)

	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Archiver{db: db, dir: dir}, nil
}

func bootstrap(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS games (
	id            TEXT PRIMARY KEY,
	stage         TEXT NOT NULL,
	winner        TEXT,
	rounds        INTEGER NOT NULL,
	civilian_word TEXT NOT NULL,
	spy_word      TEXT NOT NULL,
	session       TEXT NOT NULL,
	archived_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	game_id   TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	type      TEXT NOT NULL,
	round     INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	data      TEXT,
	PRIMARY KEY (game_id, seq)
);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("初始化归档表失败: %w", err)
	}

	return nil
}

func (a *Archiver) Close() error {
	return a.db.Close()
}

// Save 落一局。会话快照整体存成 JSON，事件逐条入库，
// 同一局重复保存会被整体覆盖。
func (a *Archiver) Save(sess *game.GameSession, events []game.Event) error {
	snapshot, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("开启归档事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO games
			(id, stage, winner, rounds, civilian_word, spy_word, session, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Stage, sess.Winner, sess.Round,
		sess.CivilianWord, sess.SpyWord,
		string(snapshot), time.Now().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("写入对局记录失败: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM events WHERE game_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("清理旧事件失败: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO events (game_id, seq, type, round, timestamp, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("准备事件写入失败: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("序列化事件 %d 失败: %w", ev.Seq, err)
		}

		if _, err := stmt.Exec(
			sess.ID, ev.Seq, ev.Type, ev.Round,
			ev.Timestamp.Format(time.RFC3339Nano), string(data),
		); err != nil {
			return fmt.Errorf("写入事件 %d 失败: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交归档事务失败: %w", err)
	}

	// 战报只是锦上添花，失败不算归档失败
	if err := a.writeTranscript(sess); err != nil {
		zap.S().Warnf("对局 %s 战报生成失败: %v", sess.ID, err)
	}

	zap.S().Infof("对局 %s 已归档，共 %d 条事件", sess.ID, len(events))

	return nil
}

// CountGames 返回归档过的对局总数
func (a *Archiver) CountGames() (int, error) {
	var n int

	if err := a.db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计归档对局失败: %w", err)
	}

	return n, nil
}

func (a *Archiver) writeTranscript(sess *game.GameSession) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# 谁是卧底 · 对局 %s\n\n", sess.ID)
	fmt.Fprintf(&sb, "- 平民词：%s\n", sess.CivilianWord)
	fmt.Fprintf(&sb, "- 卧底词：%s\n", sess.SpyWord)
	fmt.Fprintf(&sb, "- 终局状态：%s\n", sess.Stage)

	if sess.Winner != "" {
		fmt.Fprintf(&sb, "- 胜方：%s\n", game.RoleDisplayName(sess.Winner))
	}

	sb.WriteString("\n## 玩家\n\n")
	sb.WriteString("| 名字 | 身份 | 词语 | 存活 |\n")
	sb.WriteString("| --- | --- | --- | --- |\n")

	for _, name := range sess.Order {
		p := sess.Players[name]

		alive := "否"
		if p.Alive {
			alive = "是"
		}

		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
			p.Name, game.RoleDisplayName(p.Role), p.Word, alive)
	}

	for _, r := range sess.Rounds {
		fmt.Fprintf(&sb, "\n## 第 %d 轮\n\n", r.Number)

		for _, u := range r.Utterances {
			fmt.Fprintf(&sb, "- **%s**：%s\n", u.Speaker, u.Content)
		}

		if len(r.Votes) > 0 {
			sb.WriteString("\n投票：")

			parts := make([]string, 0, len(r.Votes))
			for _, v := range r.Votes {
				if v.Abstained {
					parts = append(parts, fmt.Sprintf("%s 弃票", v.Voter))
					continue
				}

				parts = append(parts, fmt.Sprintf("%s → %s", v.Voter, v.Target))
			}

			sb.WriteString(strings.Join(parts, "，"))
			sb.WriteString("\n")
		}

		if r.Eliminated != "" {
			fmt.Fprintf(&sb, "\n🔴 本轮淘汰：%s（%s）\n",
				r.Eliminated, game.RoleDisplayName(r.EliminatedRole))

			if r.LastWords != "" {
				fmt.Fprintf(&sb, "\n> 遗言：%s\n", r.LastWords)
			}
		}
	}

	path := filepath.Join(a.dir, sess.ID+".md")

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("写入战报文件失败: %w", err)
	}

	return nil
}
