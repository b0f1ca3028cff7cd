package game

import (
	"github.com/google/uuid"
)

func GenID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("Failed to generate UUID: " + err.Error())
	}

	return id.String()
}

// 短 ID 用在玩家席位上，取 UUID 尾部 8 位
func shortID() string {
	id := GenID()
	return id[len(id)-8:]
}
