package listeners

import (
	"testing"

	"connstatus/internal/status"
)

func TestStatusIconBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		health int
		want   string
	}{
		{0, "exclamation-circle"},
		{-5, "exclamation-circle"},
		{1, "frown-o"},
		{24, "frown-o"},
		{25, "meh-o"},
		{49, "meh-o"},
		{50, "smile-o"},
		{100, "smile-o"},
	}
	for _, tt := range tests {
		if got := StatusIcon(tt.health); got != tt.want {
			t.Errorf("StatusIcon(%d) = %q, want %q", tt.health, got, tt.want)
		}
	}
}

func TestRenderStatusBarEntry(t *testing.T) {
	t.Parallel()

	e := RenderStatusBarEntry(0)
	if e.Text != "$(exclamation-circle)" || e.Tooltip != "Not connected" {
		t.Fatalf("health 0 渲染错误: %+v", e)
	}
	if e.Alignment != AlignRight || e.Priority != 0 {
		t.Fatalf("对齐/优先级错误: %+v", e)
	}

	e = RenderStatusBarEntry(14)
	if e.Text != "$(frown-o)" || e.Tooltip != "Connection health: 14%" {
		t.Fatalf("health 14 渲染错误: %+v", e)
	}
}

// recordingBar 记录调用顺序
type recordingBar struct {
	calls []string
	last  StatusBarEntry
}

func (b *recordingBar) SetElement(id string, entry StatusBarEntry) {
	b.calls = append(b.calls, "set:"+id)
	b.last = entry
}

func (b *recordingBar) RemoveElement(id string) {
	b.calls = append(b.calls, "remove:"+id)
}

func TestStatusBarContributionReplacesElement(t *testing.T) {
	t.Parallel()

	bar := &recordingBar{}
	c := NewStatusBarContribution(bar)
	c.OnStatusChange(status.ChangeEvent{State: status.Connected, Health: 100})
	c.OnStatusChange(status.ChangeEvent{State: status.Connected, Health: 100})

	want := []string{
		"remove:" + ConnectionStatusElementID, "set:" + ConnectionStatusElementID,
		"remove:" + ConnectionStatusElementID, "set:" + ConnectionStatusElementID,
	}
	if len(bar.calls) != len(want) {
		t.Fatalf("调用序列 = %v, want %v", bar.calls, want)
	}
	for i := range want {
		if bar.calls[i] != want[i] {
			t.Fatalf("调用序列 = %v, want %v", bar.calls, want)
		}
	}
	if bar.last.Text != "$(smile-o)" {
		t.Fatalf("最后元素错误: %+v", bar.last)
	}
}

func TestMemoryStatusBarOrdering(t *testing.T) {
	t.Parallel()

	bar := NewMemoryStatusBar()
	bar.SetElement("b", StatusBarEntry{Alignment: AlignRight, Priority: 0})
	bar.SetElement("a", StatusBarEntry{Alignment: AlignRight, Priority: 10})
	bar.SetElement("z", StatusBarEntry{Alignment: AlignLeft, Priority: 0})

	got := bar.Elements()
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	if ids[0] != "z" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("排序错误: %v", ids)
	}

	bar.RemoveElement("a")
	if _, ok := bar.Element("a"); ok {
		t.Fatalf("移除后不应存在")
	}
}
