package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	daemonURL    string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "labctl",
	Short: "CLI for the instrumentd lab daemon",
	Long:  `labctl controls a running instrumentd daemon: attach and detach devices, start and stop measurement runs, and inspect gates and run history.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&daemonURL, "daemon", "", "daemon API URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

func initConfig() {
	viper.SetEnvPrefix("LABCTL")
	viper.AutomaticEnv()
	viper.BindEnv("daemon", "LABCTL_DAEMON")

	if daemonURL == "" {
		daemonURL = viper.GetString("daemon")
	}
	if daemonURL == "" {
		daemonURL = "http://localhost:8080"
	}
}

// DaemonURL returns the configured daemon URL without trailing slashes
func DaemonURL() string {
	return strings.TrimRight(daemonURL, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// apiCall performs a request against the daemon and decodes the JSON
// response into out when it is non-nil
func apiCall(method, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequest(method, DaemonURL()+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// printJSON writes v as indented JSON to stdout
func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(output))
	return nil
}
