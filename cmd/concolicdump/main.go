// Command concolicdump replays a YAML-encoded trace fixture through the
// concolic host and prints the path constraints and branch-flip solutions
// it accumulated, standing in for the teacher's own cmd/wazero debug
// tooling (this engine has no interactive REPL to offer -- just one
// subcommand that drives a fixture end to end).
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Cache-and-Burn/ityfuzz/internal/concolic"
	"github.com/Cache-and-Burn/ityfuzz/internal/corpus"
	"github.com/Cache-and-Burn/ityfuzz/internal/coverage"
	"github.com/Cache-and-Burn/ityfuzz/internal/evmtrace"
	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
	"github.com/Cache-and-Burn/ityfuzz/internal/solve"
)

// stepSpec is one entry of a YAML trace fixture: the opcode at pc, how
// many concrete stack slots it consumes, and the literal values it pushes
// back. The symbolic pop/push shape is derived by the host itself from Op
// (§4.3); stepSpec only drives the concrete side evmtrace.Runner needs.
type stepSpec struct {
	PC     uint64   `yaml:"pc"`
	Op     string   `yaml:"op"`
	Pops   int      `yaml:"pops"`
	Pushes []uint64 `yaml:"pushes"`
}

// traceSpec is a whole fixture: an input id for corpus tagging, hex-encoded
// calldata, and the instruction sequence to replay.
type traceSpec struct {
	InputID  string     `yaml:"input_id"`
	Calldata string     `yaml:"calldata"`
	Steps    []stepSpec `yaml:"steps"`
}

var opcodeNames = map[string]vm.OpCode{
	"STOP": vm.STOP, "ADD": vm.ADD, "SUB": vm.SUB, "MUL": vm.MUL, "DIV": vm.DIV,
	"MOD": vm.MOD, "LT": vm.LT, "GT": vm.GT, "SLT": vm.SLT, "SGT": vm.SGT,
	"EQ": vm.EQ, "ISZERO": vm.ISZERO, "AND": vm.AND, "OR": vm.OR, "XOR": vm.XOR,
	"NOT": vm.NOT, "POP": vm.POP, "MLOAD": vm.MLOAD, "MSTORE": vm.MSTORE,
	"MSTORE8": vm.MSTORE8, "SLOAD": vm.SLOAD, "SSTORE": vm.SSTORE,
	"JUMP": vm.JUMP, "JUMPI": vm.JUMPI, "JUMPDEST": vm.JUMPDEST,
	"CALLDATALOAD": vm.CALLDATALOAD, "CALLDATASIZE": vm.CALLDATASIZE,
	"CALLVALUE": vm.CALLVALUE, "CALLER": vm.CALLER, "CALL": vm.CALL,
	"CALLCODE": vm.CALLCODE, "DELEGATECALL": vm.DELEGATECALL, "STATICCALL": vm.STATICCALL,
	"RETURN": vm.RETURN, "REVERT": vm.REVERT, "KECCAK256": vm.KECCAK256,
	"PUSH1": vm.PUSH1,
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var corpusOut string
	cmd := &cobra.Command{
		Use:           "concolicdump <trace.yaml>",
		Short:         "Replay a YAML EVM trace fixture through the concolic host and dump constraints/solutions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], cmd.OutOrStdout(), corpusOut)
		},
	}
	cmd.Flags().StringVar(&corpusOut, "corpus", "", "append every solution found to this gzip-compressed seed log (§4.6); skipped if empty")
	return cmd
}

func run(path string, out io.Writer, corpusPath string) error {
	return runWithSolver(path, out, corpusPath, solve.NewZ3Solver())
}

// runWithSolver is run's implementation with the solver injected, so tests
// can exercise the corpus-append path (below) with a stub rather than
// needing a real z3 binary on PATH.
func runWithSolver(path string, out io.Writer, corpusPath string, solver solve.Solver) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("concolicdump: %w", err)
	}
	var spec traceSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return fmt.Errorf("concolicdump: parsing trace: %w", err)
	}

	calldata, err := hex.DecodeString(spec.Calldata)
	if err != nil {
		return fmt.Errorf("concolicdump: decoding calldata: %w", err)
	}
	// Declare every input byte as a named free variable, per §6's
	// input-encoding contract -- a ConstByteNode leaf has no SymName, which
	// would make buildScript/lowerInputRange (lower.go:35,191) emit
	// malformed, colliding SMT declarations and reference them, so z3 would
	// error on every query and concolicdump could never print a solution.
	input := make([]*expr.Expr, len(calldata))
	for i := range calldata {
		input[i] = expr.SymByteNode(fmt.Sprintf("input%d", i))
	}

	host := concolic.New(spec.InputID, input, coverage.New(), solver)
	r := evmtrace.NewRunner(host)
	ctx := context.Background()

	for _, step := range spec.Steps {
		op, ok := opcodeNames[step.Op]
		if !ok {
			return fmt.Errorf("concolicdump: unknown opcode %q at pc %d", step.Op, step.PC)
		}
		pops := step.Pops
		pushes := step.Pushes
		r.Step(ctx, evmtrace.Instruction{
			PC: step.PC,
			Op: op,
			Apply: func(s *evmtrace.Stack) {
				for i := 0; i < pops; i++ {
					s.Pop()
				}
				for _, v := range pushes {
					s.Push(*uint256.NewInt(v))
				}
			},
		})
	}

	fmt.Fprintf(out, "constraints (%d):\n", len(host.Constraints))
	for i, c := range host.Constraints {
		fmt.Fprintf(out, "  [%d] %s\n", i, c)
	}
	fmt.Fprintf(out, "solutions (%d):\n", len(host.Solutions))
	for i, sol := range host.Solutions {
		fmt.Fprintf(out, "  [%d] input=%x caller=%s value=%s fields=%v\n", i, sol.Input, sol.Caller, sol.Value, sol.Fields)
	}

	if corpusPath != "" && len(host.Solutions) > 0 {
		store, err := corpus.Open(corpusPath)
		if err != nil {
			return fmt.Errorf("concolicdump: opening corpus: %w", err)
		}
		defer store.Close()
		for _, sol := range host.Solutions {
			if err := store.Append(host.InputID, sol); err != nil {
				return fmt.Errorf("concolicdump: appending seed: %w", err)
			}
		}
		fmt.Fprintf(out, "appended %d seed(s) to %s\n", len(host.Solutions), corpusPath)
	}
	return nil
}
