package telegram

import (
	"sync"
	"time"
)

const (
	debounce = 1200 * time.Millisecond
	// одновременно анализируемых фото одного пакета
	batchParallel = 4
	maxFileBytes  = 20 << 20
)

type photo struct {
	Name string
	MIME string
	Data []byte
}

type photoBatch struct {
	ChatID       int64
	Key          string // "grp:<mediaGroupID>" | "chat:<chatID>"
	MediaGroupID string

	mu     sync.Mutex
	photos []photo
	timer  *time.Timer
}
