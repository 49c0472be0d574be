package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/irr"
	"github.com/okian/irr/internal/domain/types"
)

// ComputeOptions holds the flags of the compute command.
type ComputeOptions struct {
	Precision float64
	Input     string
}

// NewComputeCommand creates the compute command.
func NewComputeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ComputeOptions{}

	cmd := &cobra.Command{
		Use:   "compute <file>",
		Short: "Compute the IRR of a cash-flow file",
		Long: `Compute the internal rate of return of a cash flow read from a JSON,
YAML or TOML file ("-" reads JSON from stdin).

The file is either a mapping of YYYY-MM-DD dates to amounts, or an object
with a "cashflow" mapping and an optional "precision". The --precision flag
wins over the file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().Float64VarP(&opts.Precision, "precision", "p", irr.DefaultPrecision, "required precision on the IRR")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", InputAuto, "input format (auto|json|yaml|toml)")

	return cmd
}

func runCompute(cmd *cobra.Command, rootOpts *RootOptions, opts *ComputeOptions, path string) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	doc, err := ReadDocument(path, opts.Input, cmd.InOrStdin())
	if err != nil {
		code := CodeReadFailed
		if errors.Is(err, irr.ErrInvalidInput) || errors.Is(err, ErrUnknownInputFormat) {
			code = CodeInvalidInput
		}
		_ = formatter.Error(code, "", err.Error())
		return WrapExitError(ExitCommandError, "cannot load cash flow", err)
	}

	precision := opts.Precision
	if doc.Precision != nil && !cmd.Flags().Changed("precision") {
		precision = *doc.Precision
	}
	formatter.VerboseLog("loaded %d entries from %s, precision %g", len(doc.Flow), path, precision)

	res, err := compute(cmd.Context(), doc.Flow, precision)
	formatter.VerboseLog("method=%s iterations=%d evaluations=%d bracket_probes=%d",
		res.Method, res.Iterations, res.Evaluations, res.BracketProbes)

	var nse *irr.NoSolutionError
	var fault *irr.FaultError
	switch {
	case err == nil:
	case errors.As(err, &nse):
		_ = formatter.Error(CodeNoSolution, string(nse.Reason), err.Error())
		return WrapExitError(ExitFailure, "no IRR found", err)
	case errors.Is(err, irr.ErrInvalidInput):
		_ = formatter.Error(CodeInvalidInput, "", err.Error())
		return WrapExitError(ExitCommandError, "invalid cash flow", err)
	case errors.As(err, &fault):
		formatter.VerboseLog("%v", fault)
		_ = formatter.Error(CodeInternal, fault.Stage, err.Error())
		return WrapExitError(ExitFailure, "internal solver fault", err)
	default:
		_ = formatter.Error(CodeInternal, "", err.Error())
		return WrapExitError(ExitFailure, "computation failed", err)
	}

	return formatter.Success(types.Result{
		IRR:           res.IRR,
		Percent:       res.IRR * 100,
		Method:        string(res.Method),
		Iterations:    res.Iterations,
		Evaluations:   res.Evaluations,
		BracketProbes: res.BracketProbes,
	}, fmt.Sprintf("IRR: %.6f%% (%s, %d iterations)", res.IRR*100, res.Method, res.Iterations))
}

// compute turns a solver fault panic into a returned *irr.FaultError.
func compute(ctx context.Context, flow cashflow.Flow, precision float64) (res irr.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			fault, ok := r.(*irr.FaultError)
			if !ok {
				panic(r)
			}
			err = fault
		}
	}()
	return irr.New(irr.WithPrecision(precision)).Compute(ctx, flow)
}
