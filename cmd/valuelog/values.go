package valuelog

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/valuelog/pkg/httputil"
	"github.com/spf13/cobra"
)

var (
	serverURL      string
	requestTimeout time.Duration
)

var valuesCmd = &cobra.Command{
	Use:     "values",
	Aliases: []string{"v"},
	Short:   "Create, update and read values through a running gateway",
}

var createCmd = &cobra.Command{
	Use:   "create VALUE",
	Short: "Create a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[0], err)
		}
		return call(cmd, http.MethodPost, "/values", map[string]float64{"value": value})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update VALUE_ID ADD|MULTIPLY OPERAND",
	Short: "Apply an operation to a value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		operand, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid operand %q: %w", args[2], err)
		}
		body := map[string]any{"operation": strings.ToUpper(args[1]), "value": operand}
		return call(cmd, http.MethodPut, "/values/"+args[0], body)
	},
}

var getCmd = &cobra.Command{
	Use:   "get VALUE_ID",
	Short: "Read a value from the read model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodGet, "/values/"+args[0], nil)
	},
}

func init() {
	pf := valuesCmd.PersistentFlags()
	pf.StringVarP(&serverURL, "server", "s", "http://localhost:8080", "gateway base URL")
	pf.DurationVar(&requestTimeout, "timeout", 5*time.Second, "per-request timeout")

	valuesCmd.AddCommand(createCmd, updateCmd, getCmd)
}

// call sends one request to the gateway and prints the response body.
func call(cmd *cobra.Command, method, path string, payload any) error {
	rc := httputil.DefaultRequestConfig(method, strings.TrimSuffix(serverURL, "/")+path)
	rc.Timeout = requestTimeout
	rc.Logger = logger

	resp, err := httputil.Request(cmd.Context(), rc, payload)
	if err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) {
			return fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(statusErr.Body)))
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(resp.Body)))
	return nil
}
