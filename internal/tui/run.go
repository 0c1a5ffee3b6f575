package tui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Result 返回 TUI 退出时的状态，调用方据此保存会话。
type Result struct {
	ActiveSlide string
}

// Run 封装 Bubble Tea 入口，阻塞到用户退出。
func Run(opts Options) (Result, error) {
	program := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithMouseCellMotion())
	m, err := program.Run()
	if err != nil {
		return Result{}, err
	}
	model, ok := m.(*Model)
	if !ok {
		return Result{}, errors.New("unexpected tui model")
	}
	return Result{ActiveSlide: model.ActiveSlide()}, nil
}
