package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"StatArb/internal/domain/models"
)

// QuoteLog appends accepted quotes to a JSON-lines file for later replay.
type QuoteLog struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
	n  int
}

func OpenQuoteLog(path string) (*QuoteLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open quote log: %w", err)
	}
	return &QuoteLog{f: f, w: bufio.NewWriterSize(f, 64<<10)}, nil
}

func (l *QuoteLog) Write(q *models.Quote) error {
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		return err
	}
	l.n++
	return nil
}

// Written reports how many quotes were appended.
func (l *QuoteLog) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

func (l *QuoteLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Flush()
}

func (l *QuoteLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}

// ReadQuotes decodes a JSON-lines quote stream in order and calls fn for
// each valid quote. Blank lines are skipped; a malformed line aborts with its
// line number.
func ReadQuotes(ctx context.Context, r io.Reader, fn func(*models.Quote) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)

	line, n := 0, 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var q models.Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if err := q.Validate(); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(&q); err != nil {
			return n, err
		}
		n++
	}
	return n, sc.Err()
}
