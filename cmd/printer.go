package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lstailors/LST-MissionControl-sub000/internal/gateway"
	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// streamPrinter는 누적 텍스트로 오는 스트림 청크를 터미널에 증분 출력합니다.
// 콜백은 디스패처 고루틴에서, 상태 줄은 REPL에서 들어오므로 mu로 직렬화합니다.
type streamPrinter struct {
	mu sync.Mutex
	w  io.Writer

	// runID와 printed는 현재 줄에 이미 출력한 실행과 텍스트입니다.
	runID   string
	printed string
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{w: w}
}

// chunk는 이전에 출력한 부분 이후의 텍스트만 씁니다.
// 누적 텍스트가 이전 출력으로 시작하지 않으면 (재작성) 새 줄에 전체를 다시 씁니다.
func (p *streamPrinter) chunk(c gateway.StreamChunk) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.RunID != p.runID {
		p.breakLine()
		p.runID = c.RunID
	}
	p.advance(c.Text)
}

// end는 남은 텍스트와 종료 상태를 쓰고 줄을 마칩니다.
func (p *streamPrinter) end(e gateway.StreamEnd) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.RunID != p.runID {
		p.breakLine()
		p.runID = e.RunID
	}

	switch e.State {
	case protocol.ChatStateError:
		p.advance(e.Text)
		msg := e.ErrorMessage
		if msg == "" {
			msg = "chat error"
		}
		p.breakLine()
		fmt.Fprintln(p.w, errorStyle.Render("✗ "+msg))
	case protocol.ChatStateAborted:
		p.advance(e.Text)
		p.breakLine()
		fmt.Fprintln(p.w, dimStyle.Render("[aborted]"))
	default:
		p.advance(e.Text)
		p.breakLine()
	}

	for _, m := range e.Media {
		label := m.URL
		if m.Type != "" {
			label += " (" + m.Type + ")"
		}
		fmt.Fprintln(p.w, dimStyle.Render("  media: "+label))
	}

	p.runID = ""
	p.printed = ""
}

// line은 진행 중인 스트림을 끊지 않도록 새 줄에서 한 줄을 씁니다.
func (p *streamPrinter) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.printed != "" {
		fmt.Fprintln(p.w)
	}
	fmt.Fprintln(p.w, s)
	// 다음 청크는 같은 실행이라도 새 줄에서 다시 시작
	if p.printed != "" {
		p.printed = ""
		p.runID = ""
	}
}

func (p *streamPrinter) advance(text string) {
	if strings.HasPrefix(text, p.printed) {
		fmt.Fprint(p.w, text[len(p.printed):])
	} else {
		p.breakLine()
		fmt.Fprint(p.w, text)
	}
	p.printed = text
}

func (p *streamPrinter) breakLine() {
	if p.printed != "" {
		fmt.Fprintln(p.w)
	}
	p.printed = ""
}
