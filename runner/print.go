package runner

import (
	"fmt"
	"io"
)

func PrintResult(w io.Writer, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, " Run Result %s\n", r.Name)
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Episodes:      %d\n", len(r.Episodes))
	fmt.Fprintf(w, "Mean Reward:   %.6f\n", r.MeanReward)
	fmt.Fprintf(w, "Std Reward:    %.6f\n", r.StdReward)
	fmt.Fprintf(w, "Mean Return:   %.2f%%\n", r.MeanReturn)
	fmt.Fprintf(w, "Bankrupt:      %d\n", r.Bankrupt)

	if len(r.Episodes) == 0 {
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Episodes")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "%4s %6s %10s %10s %9s %9s\n", "#", "steps", "reward", "final", "market", "portf")
	for _, ep := range r.Episodes {
		fmt.Fprintf(w, "%4d %6d %10.4f %10.2f %8.2f%% %8.2f%%\n",
			ep.Episode, ep.Steps, ep.Reward, ep.FinalValue, ep.MarketReturn, ep.PortfolioReturn)
		if ep.Render != "" {
			fmt.Fprintf(w, "     render: %s\n", ep.Render)
		}
	}
	fmt.Fprintln(w)
}
