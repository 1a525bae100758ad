package shell

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"src.sel.sh/pkg/selection"
	"src.sel.sh/pkg/trajectory"
)

// output writes evaluation results, either as text or as one JSON value per
// line.
type output struct {
	w    *bufio.Writer
	json bool
}

func newOutput(w io.Writer, json bool) *output {
	return &output{bufio.NewWriter(w), json}
}

type frameJSON struct {
	Frame      int             `json:"frame"`
	Step       int             `json:"step"`
	Time       float64         `json:"time"`
	Selections []selectionJSON `json:"selections"`
}

type selectionJSON struct {
	Name    string `json:"name"`
	Indices []int  `json:"indices"`
}

type summaryJSON struct {
	Frames     int           `json:"frames"`
	Selections []summaryItem `json:"summary"`
}

type summaryItem struct {
	Name     string  `json:"name"`
	AvgCount float64 `json:"avgCount"`
	MaxCount int     `json:"maxCount"`
}

type infoJSON struct {
	Selections []infoItem `json:"selections"`
}

type infoItem struct {
	Name    string `json:"name"`
	Text    string `json:"text"`
	Dynamic bool   `json:"dynamic"`
	PosType string `json:"posType"`
}

// frame writes one line per selection: the frame index, the selection name
// and the selected indices.
func (o *output) frame(r trajectory.Result) error {
	if o.json {
		fj := frameJSON{Frame: r.Index, Selections: []selectionJSON{}}
		if r.Frame != nil {
			fj.Step, fj.Time = r.Frame.Step, r.Frame.Time
		}
		for _, s := range r.Selections {
			indices := s.Indices
			if indices == nil {
				indices = []int{}
			}
			fj.Selections = append(fj.Selections, selectionJSON{s.Name, indices})
		}
		return o.encode(fj)
	}
	for _, s := range r.Selections {
		if _, err := fmt.Fprintf(o.w, "%d\t%s\t%s\n", r.Index, s.Name, joinInts(s.Indices)); err != nil {
			return err
		}
	}
	return nil
}

func (o *output) summary(sum *trajectory.Summary) {
	if o.json {
		sj := summaryJSON{Frames: sum.NFrames, Selections: []summaryItem{}}
		for i, name := range sum.Names {
			sj.Selections = append(sj.Selections,
				summaryItem{name, sum.AvgCounts[i], sum.MaxCounts[i]})
		}
		o.encode(sj)
		return
	}
	fmt.Fprintf(o.w, "# %d frames\n", sum.NFrames)
	for i, name := range sum.Names {
		fmt.Fprintf(o.w, "# %q: average %.2f atoms, at most %d\n",
			name, sum.AvgCounts[i], sum.MaxCounts[i])
	}
}

func (o *output) info(sc *selection.Collection) {
	if !o.json {
		sc.PrintInfo(o.w)
		return
	}
	ij := infoJSON{Selections: []infoItem{}}
	for _, s := range sc.Selections() {
		ij.Selections = append(ij.Selections,
			infoItem{s.Name(), s.Text(), s.IsDynamic(), s.PosType().String()})
	}
	o.encode(ij)
}

func (o *output) encode(v any) error {
	return json.NewEncoder(o.w).Encode(v)
}

func (o *output) flush() {
	if err := o.w.Flush(); err != nil {
		logger.Println("flush output:", err)
	}
}

func joinInts(xs []int) string {
	var sb strings.Builder
	for i, x := range xs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(x))
	}
	return sb.String()
}
