package collab

import "sharednote/backend/internal/ot"

// 抽象文档内容缓冲区接口
// Apply 与 ot.Apply 语义一致：越界的位置和长度被钳制，不会失败
type Buffer interface {
	Len() int
	Apply(op ot.Operation)
	String() string
}

/*
结构示例

初始文档内容 `"Hello world"`：

- original buffer 内容：`"Hello world"`
- add buffer 为空 (`""`)
- piece 表：

[ (orig, offset=0, length=11) ]  // 整个文档

INSERT@5 " collaborative"：
- 在 add buffer 末尾追加 `" collaborative"`
- piece 表从一条拆成三条：

[
  (orig, offset=0, length=5),       // "Hello"
  (add,  offset=0, length=14),      // " collaborative"
  (orig, offset=5, length=6),       // " world"
]
*/
