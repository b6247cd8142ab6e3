package cache

import "fmt"

// 键语义：
// - roomKey(docID):           房间在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID):          房间内 userId→username 映射（Hash）

const (
	keyRoomFmt  = "presence:room:{docID:%s}"       // ZSet<userId, expireAtUnix>
	keyNamesFmt = "presence:room:names:{docID:%s}" // Hash<userId -> username>
)

func roomKey(docID string) string  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string { return fmt.Sprintf(keyNamesFmt, docID) }
