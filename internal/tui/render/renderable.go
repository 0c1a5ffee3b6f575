package render

// Block 是转录中的一个可渲染单元，按给定宽度产出行。
type Block interface {
	Lines(width int) []Line
}

// StaticLines 用于包装已准备好的行。
type StaticLines []Line

func (s StaticLines) Lines(int) []Line { return s }

// Column 垂直堆叠子元素，相邻元素之间可插入空行。
type Column struct {
	children []Block
	gap      int
}

// NewColumn 创建空列。
func NewColumn(gap int) *Column {
	return &Column{gap: gap}
}

func (c *Column) Push(child Block) {
	if c == nil || child == nil {
		return
	}
	c.children = append(c.children, child)
}

func (c *Column) Len() int {
	if c == nil {
		return 0
	}
	return len(c.children)
}

// Lines 依次渲染子元素；空的子元素不占间隔。
func (c *Column) Lines(width int) []Line {
	if c == nil {
		return nil
	}
	var out []Line
	for _, child := range c.children {
		lines := child.Lines(width)
		if len(lines) == 0 {
			continue
		}
		if len(out) > 0 {
			for i := 0; i < c.gap; i++ {
				out = append(out, Line{})
			}
		}
		out = append(out, lines...)
	}
	return out
}
