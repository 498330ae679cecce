package tgui

import "fmt"

// Page describes one page of a listing. Index is 0-based.
type Page struct {
	Index int
	Size  int
	Total int
}

// NewPage clamps index into the valid range for total items.
func NewPage(index, size, total int) Page {
	if size <= 0 {
		size = 5
	}
	p := Page{Index: index, Size: size, Total: max(total, 0)}
	p.Index = min(max(p.Index, 0), p.Count()-1)
	return p
}

// Count is the number of pages, at least 1.
func (p Page) Count() int {
	if p.Total <= 0 {
		return 1
	}
	return (p.Total + p.Size - 1) / p.Size
}

func (p Page) Offset() int   { return p.Index * p.Size }
func (p Page) HasPrev() bool { return p.Index > 0 }
func (p Page) HasNext() bool { return p.Offset()+p.Size < p.Total }

// Label is a compact "Page 2/3 • 6–10 of 12".
func (p Page) Label() string {
	if p.Total == 0 {
		return "Page 1/1"
	}
	from := p.Offset() + 1
	to := min(p.Offset()+p.Size, p.Total)
	return fmt.Sprintf("Page %d/%d • %d–%d of %d", p.Index+1, p.Count(), from, to, p.Total)
}

// NavRow appends "previous/next" buttons when there is somewhere to go.
// dataFor builds the callback data for a target page index.
func (i *Inline) NavRow(p Page, dataFor func(page int) string) *Inline {
	var row []Button
	if p.HasPrev() {
		row = append(row, Btn("⬅️ Previous", dataFor(p.Index-1)))
	}
	if p.HasNext() {
		row = append(row, Btn("Next ➡️", dataFor(p.Index+1)))
	}
	if len(row) == 0 {
		return i
	}
	return i.Row(row...)
}
