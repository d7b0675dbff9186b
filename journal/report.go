package journal

import (
	"io"
	"sort"
	"text/template"
	"time"
)

// RunReport is a run with its episodes, rendered as an Org-mode entry.
type RunReport struct {
	Run      Run
	Episodes []EpisodeRecord

	// Derived by Summarize
	MeanPortfolioReturn float64
	MeanMarketReturn    float64
	BeatMarket          int // episodes where portfolio return > market return
	Best, Worst         float64
	Bankrupt            int // episodes that ended done
	MetricNames         []string
}

// Report loads a run and its episodes.
func (j *SQLite) Report(runID string) (*RunReport, error) {
	run, err := j.GetRun(runID)
	if err != nil {
		return nil, err
	}
	eps, err := j.ListEpisodes(runID)
	if err != nil {
		return nil, err
	}
	r := &RunReport{Run: run, Episodes: eps}
	r.Summarize()
	return r, nil
}

// Summarize fills the derived fields from Episodes.
func (r *RunReport) Summarize() {
	r.MeanPortfolioReturn, r.MeanMarketReturn = 0, 0
	r.BeatMarket, r.Bankrupt = 0, 0
	r.MetricNames = nil
	if len(r.Episodes) == 0 {
		r.Best, r.Worst = 0, 0
		return
	}

	names := map[string]bool{}
	r.Best, r.Worst = r.Episodes[0].PortfolioReturn, r.Episodes[0].PortfolioReturn
	for _, e := range r.Episodes {
		r.MeanPortfolioReturn += e.PortfolioReturn
		r.MeanMarketReturn += e.MarketReturn
		if e.PortfolioReturn > e.MarketReturn {
			r.BeatMarket++
		}
		if e.Done {
			r.Bankrupt++
		}
		if e.PortfolioReturn > r.Best {
			r.Best = e.PortfolioReturn
		}
		if e.PortfolioReturn < r.Worst {
			r.Worst = e.PortfolioReturn
		}
		for k := range e.Metrics {
			names[k] = true
		}
	}
	n := float64(len(r.Episodes))
	r.MeanPortfolioReturn /= n
	r.MeanMarketReturn /= n
	for k := range names {
		r.MetricNames = append(r.MetricNames, k)
	}
	sort.Strings(r.MetricNames)
}

var reportFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
	"metric": func(e EpisodeRecord, name string) string {
		return e.Metrics[name]
	},
}

var reportTemplate = template.Must(template.New("run").Funcs(reportFuncs).Parse(RunOrgTemplate))

// WriteOrg renders the report.
func (r *RunReport) WriteOrg(w io.Writer) error {
	return reportTemplate.Execute(w, r)
}

const RunOrgTemplate = `* RUN: {{.Run.Env}} {{if .Run.Agent}}{{.Run.Agent}}{{else}}(agent?){{end}}
:PROPERTIES:
:RUN_ID:      {{.Run.RunID}}
:DATASET:     {{if .Run.Dataset}}{{.Run.Dataset}}{{else}}(dataset?){{end}}
:SEED:        {{.Run.Seed}}
:EPISODES:    {{len .Episodes}}
:MEAN_RETURN: {{printf "%.2f" .MeanPortfolioReturn}}
:MEAN_MARKET: {{printf "%.2f" .MeanMarketReturn}}
:BEAT_MARKET: {{.BeatMarket}}
:BANKRUPT:    {{.Bankrupt}}
:CREATED:     [{{(orTime .Run.Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Mean portfolio return: *{{printf "%.2f" .MeanPortfolioReturn}}%*
- Mean market return:    *{{printf "%.2f" .MeanMarketReturn}}%*
- Best / worst episode:  *{{printf "%.2f" .Best}}% / {{printf "%.2f" .Worst}}%*

** Episodes
| Env | Episode | Dataset | Steps | Market % | Portfolio % | Done |{{range .MetricNames}} {{.}} |{{end}}
|-----+---------+---------+-------+----------+-------------+------|{{range .MetricNames}}---|{{end}}
{{- range $e := .Episodes}}
| {{$e.Env}} | {{$e.Episode}} | {{$e.Dataset}} | {{$e.Steps}} | {{printf "%.2f" $e.MarketReturn}} | {{printf "%.2f" $e.PortfolioReturn}} | {{$e.Done}} |{{range $.MetricNames}} {{metric $e .}} |{{end}}
{{- end}}
`
