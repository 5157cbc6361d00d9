package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Reporter generates backtest reports
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport writes the summary, the per-step log and the JSON report
// into the output directory.
func (r *Reporter) GenerateReport() error {
	// Create output directory
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}

	if err := r.generateEvaluationLog(); err != nil {
		return err
	}

	if err := r.generateJSONReport(); err != nil {
		return err
	}

	return nil
}

// generateSummary generates a human-readable summary
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "backtest_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer) {
	res := r.results
	fmt.Fprintf(w, "BACKTEST RESULTS SUMMARY\n")
	fmt.Fprintf(w, "========================\n\n")

	fmt.Fprintf(w, "Model: %s (version %s)\n", res.Model, res.Version)
	fmt.Fprintf(w, "Time Period: %s to %s\n",
		res.StartTime.Format("2006-01-02 15:04:05"),
		res.EndTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Horizon: %d bar(s)\n\n", res.Horizon)

	fmt.Fprintf(w, "CLASSIFICATION\n")
	fmt.Fprintf(w, "--------------\n")
	fmt.Fprintf(w, "Evaluated Steps: %d\n", res.Total)
	fmt.Fprintf(w, "Failed Steps: %d\n", res.Errors)
	fmt.Fprintf(w, "Accuracy: %.2f%%\n", res.Accuracy*100)
	fmt.Fprintf(w, "Precision: %.2f%%\n", res.Precision*100)
	fmt.Fprintf(w, "Recall: %.2f%%\n\n", res.Recall*100)

	fmt.Fprintf(w, "CONFUSION MATRIX\n")
	fmt.Fprintf(w, "----------------\n")
	fmt.Fprintf(w, "                 actual+  actual-\n")
	fmt.Fprintf(w, "predicted+      %8d %8d\n", res.TruePositives, res.FalsePositives)
	fmt.Fprintf(w, "predicted-      %8d %8d\n\n", res.FalseNegatives, res.TrueNegatives)

	fmt.Fprintf(w, "RETURNS (log)\n")
	fmt.Fprintf(w, "-------------\n")
	fmt.Fprintf(w, "Long When Positive: %.4f\n", res.StrategyReturn)
	fmt.Fprintf(w, "Buy And Hold: %.4f\n", res.BuyHoldReturn)
	fmt.Fprintf(w, "Max Drawdown: %.4f\n", res.MaxDrawdown)
}

// generateEvaluationLog generates a CSV log of every step
func (r *Reporter) generateEvaluationLog() error {
	csvPath := filepath.Join(r.outputPath, "evaluation_log.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create evaluation log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"Time", "Close", "Next Close", "Prediction", "Value", "Actual", "Correct", "Return"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, ev := range r.results.Evaluations {
		record := []string{
			ev.Time.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.2f", ev.Close),
			fmt.Sprintf("%.2f", ev.NextClose),
			string(ev.Label),
			fmt.Sprintf("%.6f", ev.Value),
			string(ev.Actual),
			fmt.Sprintf("%t", ev.Correct),
			fmt.Sprintf("%.6f", ev.Return),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write evaluation log: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Evaluation log generated")
	return nil
}

// generateJSONReport generates a JSON report with all data
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "backtest_results.json")

	report := map[string]interface{}{
		"results":      r.results,
		"generated_at": time.Now().UTC(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to console
func (r *Reporter) PrintSummary() {
	fmt.Println()
	r.writeSummary(os.Stdout)
	fmt.Println("========================")
}
