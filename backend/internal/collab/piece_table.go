package collab

import (
	"strings"

	"sharednote/backend/internal/ot"
)

type bufferKind int

const (
	//iota：在 const (...) 里从 0 开始自动递增。换句话说，这里：bufOriginal = 0, bufAdd = 1
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	// 指针标签，表示从 original 还是 add 切片上偏移
	buf    bufferKind
	offset int // 偏移量
	length int
}

// PieceTable 是文档内容的缓冲区，按 rune 计数
type PieceTable struct {
	// 原始文本切片
	original []rune
	// 新增文本切片
	add []rune
	// 分片列表
	pieces []piece
	size   int
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r, size: len(r)}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return pt
}

func (pt *PieceTable) Len() int { return pt.size }

func (pt *PieceTable) String() string {
	var b strings.Builder
	b.Grow(pt.size)
	for _, p := range pt.pieces {
		switch p.buf {
		case bufOriginal:
			b.WriteString(string(pt.original[p.offset : p.offset+p.length]))
		case bufAdd:
			b.WriteString(string(pt.add[p.offset : p.offset+p.length]))
		}
	}
	return b.String()
}

// Apply 应用一个定位操作；位置越界钳制到末尾，删除长度钳制到剩余长度
func (pt *PieceTable) Apply(op ot.Operation) {
	switch op.Type {
	case ot.Insert:
		pt.insert(clampInt(op.Position, 0, pt.size), op.Content)
	case ot.Delete:
		pos := clampInt(op.Position, 0, pt.size)
		pt.delete(pos, clampInt(op.Length, 0, pt.size-pos))
	}
	// RETAIN 不改变内容
}

func (pt *PieceTable) insert(pos int, text string) {
	if text == "" {
		return
	}
	r := []rune(text)
	start := len(pt.add)
	pt.add = append(pt.add, r...)
	newPiece := piece{buf: bufAdd, offset: start, length: len(r)}

	idx, offset := pt.locate(pos)
	if idx >= len(pt.pieces) {
		pt.pieces = append(pt.pieces, newPiece)
		pt.size += len(r)
		return
	}

	cur := pt.pieces[idx]
	left := piece{buf: cur.buf, offset: cur.offset, length: offset}
	right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

	newPieces := make([]piece, 0, len(pt.pieces)+2)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	if left.length > 0 {
		newPieces = append(newPieces, left)
	}
	newPieces = append(newPieces, newPiece)
	if right.length > 0 {
		newPieces = append(newPieces, right)
	}
	newPieces = append(newPieces, pt.pieces[idx+1:]...)
	pt.pieces = newPieces
	pt.size += len(r)
}

func (pt *PieceTable) delete(pos, n int) {
	// 要删的剩余长度
	remain := n
	idx, offset := pt.locate(pos)

	for remain > 0 && idx < len(pt.pieces) {
		cur := pt.pieces[idx]
		// 这个 piece 里还剩多少可删
		can := cur.length - offset
		if can <= 0 {
			idx++
			offset = 0
			continue
		}
		take := min(remain, can)

		if offset == 0 && take == cur.length {
			// 整个 piece 都删掉，idx 不动（现在这个位置是删完后的下一个 piece）
			pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
		} else {
			// 只删中间一段：拆成 左 / 右 两段
			leftLen := offset
			rightLen := cur.length - offset - take

			newPieces := make([]piece, 0, len(pt.pieces)+1)
			newPieces = append(newPieces, pt.pieces[:idx]...)
			if leftLen > 0 {
				newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
			}
			if rightLen > 0 {
				newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
			}
			newPieces = append(newPieces, pt.pieces[idx+1:]...)
			pt.pieces = newPieces
		}

		remain -= take
		pt.size -= take
	}
}

// 根据逻辑位置 pos，找到对应的 piece 下标 idx 和在该 piece 内的偏移 offset
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
