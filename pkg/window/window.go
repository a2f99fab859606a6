// Package window 计算长列表的虚拟化渲染窗口。
//
// 按固定行高估算，从滚动偏移推出需要挂载的连续下标区间，渲染成本
// 与容器高度成正比而与列表长度无关。行高固定是有意的近似：变高
// 内容会产生轻微的滚动偏移，属于接受的折衷。
package window

// DefaultOverscan 默认上下各多渲染的行数，缓解快速滚动时的闪烁
const DefaultOverscan = 4

// Window 渲染窗口计算器
type Window struct {
	// ItemHeight 单行高度估计值（像素），必须为正
	ItemHeight int
	// Overscan 可视区外额外渲染的行数，负值按 0 处理
	Overscan int
}

// New 创建窗口计算器，itemHeight 非正时取 1
func New(itemHeight int) Window {
	if itemHeight <= 0 {
		itemHeight = 1
	}
	return Window{ItemHeight: itemHeight, Overscan: DefaultOverscan}
}

// Slice 计算需要渲染的闭区间 [start, end]
// itemCount 为 0 时返回 (0, -1) 表示空区间；区间始终满足
// 0 <= start <= end <= itemCount-1，长度为 O(containerHeight/ItemHeight)
func (w Window) Slice(itemCount, containerHeight, scrollTop int) (start, end int) {
	if itemCount <= 0 {
		return 0, -1
	}
	if scrollTop < 0 {
		scrollTop = 0
	}
	if containerHeight < 0 {
		containerHeight = 0
	}
	overscan := w.Overscan
	if overscan < 0 {
		overscan = 0
	}
	itemHeight := w.ItemHeight
	if itemHeight <= 0 {
		itemHeight = 1
	}

	start = scrollTop/itemHeight - overscan
	if start < 0 {
		start = 0
	}

	last := itemCount - 1
	end = (scrollTop+containerHeight+itemHeight-1)/itemHeight + overscan
	if end > last {
		end = last
	}
	if start > end {
		start = end
	}
	return start, end
}

// TotalHeight 返回完整列表的滚动高度
// 只挂载切片时滚动条比例仍需按全量高度计算
func (w Window) TotalHeight(itemCount int) int {
	if itemCount <= 0 {
		return 0
	}
	itemHeight := w.ItemHeight
	if itemHeight <= 0 {
		itemHeight = 1
	}
	return itemCount * itemHeight
}
