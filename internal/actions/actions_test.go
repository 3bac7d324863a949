package actions_test

import (
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/actions"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
)

func coord(x, y int) *events.Coordinate { return &events.Coordinate{X: x, Y: y} }

func TestEncode(t *testing.T) {
	drag := events.Event{Action: "drag", Coordinate: coord(10, 20), Description: "Drag from (10, 20) to (300, 400)"}
	cases := []struct {
		name  string
		ev    events.Event
		coord *events.Coordinate
		want  string
	}{
		{"click", events.Event{Action: "click", Description: "Click OK"}, coord(500, 300), "pyautogui.click(500, 300)"},
		{"double", events.Event{Action: "click", Description: "Double click icon"}, coord(1, 2), "pyautogui.doubleClick(1, 2)"},
		{"right", events.Event{Action: "click", Description: "Right click file"}, coord(1, 2), "pyautogui.rightClick(1, 2)"},
		{"triple", events.Event{Action: "click", Description: "Triple click line"}, coord(1, 2), "pyautogui.click(1, 2, clicks=3)"},
		{"drag original", drag, drag.Coordinate, "pyautogui.moveTo(10, 20); pyautogui.dragTo(300, 400)"},
		{"drag override", drag, coord(15, 25), "pyautogui.moveTo(15, 25); pyautogui.dragTo(300, 400)"},
		{"drag no description", events.Event{Action: "drag"}, coord(5, 6), "pyautogui.drag(5, 6)"},
		{"scroll", events.Event{Action: "scroll", Description: "Scroll ⬇️×3 ⬆️×1"}, nil, "pyautogui.scroll(-2)"},
		{"type", events.Event{Action: "type", Description: "⌨️ Type: hello"}, nil, "pyautogui.write('hello')"},
		{"type long", events.Event{Action: "type", Description: "⌨️ Type: abcdefghijklmnopqrstuvwxyz0123456789"}, nil, "pyautogui.write('abcdefghijklmnopqrstuvwxyz0123...')"},
		{"type unknown", events.Event{Action: "type"}, nil, "pyautogui.write('...')"},
		{"press", events.Event{Action: "press", Description: "⌨️ Press: 'ctrl', 's'"}, nil, "pyautogui.hotkey('ctrl', 's')"},
		{"press unknown", events.Event{Action: "press"}, nil, "pyautogui.press('...')"},
		{"other", events.Event{Action: "wait"}, nil, "# wait"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := actions.Encode(tc.ev, tc.coord); got != tc.want {
				t.Fatalf("Encode = %q want %q", got, tc.want)
			}
		})
	}
}
