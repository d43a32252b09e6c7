package cmd

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xuperchain/xnative/bcs/contract/evm/geth"
	"github.com/xuperchain/xnative/bcs/contract/native/base"
	"github.com/xuperchain/xnative/kernel/contract/sandbox"
	"github.com/xuperchain/xnative/kernel/native"
	"github.com/xuperchain/xnative/kernel/native/dispatch"
	"github.com/xuperchain/xnative/lib/logs"
)

// CallArgs describes one call run by the call command.
type CallArgs struct {
	ConfPath string
	Features []string
	To       string
	From     string
	Data     string
	Gas      uint64
	Value    string
	ReadOnly bool
}

type CallCmd struct {
	BaseCmd
}

func GetCallCmd() *CallCmd {
	callCmdIns := new(CallCmd)

	var args CallArgs

	callCmdIns.cmd = &cobra.Command{
		Use:   "call",
		Short: "Run one call against a fresh in-memory state.",
		Example: "xnative call --to 0xffffffffffffffffffffffffffffffffff030002 " +
			"--data <abi encoded calldata> --gas 100000",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := openLogger()
			if err != nil {
				return err
			}
			return Call(cmd.OutOrStdout(), &args, log)
		},
	}

	flags := callCmdIns.cmd.Flags()
	flags.StringVarP(&args.ConfPath, "conf", "c", "", "native contract config file path")
	flags.StringSliceVar(&args.Features, "features", nil, "extra features to enable")
	flags.StringVar(&args.To, "to", "", "target address")
	flags.StringVar(&args.From, "from", "0x0000000000000000000000000000000000000001", "caller address")
	flags.StringVar(&args.Data, "data", "", "hex encoded calldata")
	flags.Uint64Var(&args.Gas, "gas", 1000000, "gas allotment")
	flags.StringVar(&args.Value, "value", "0", "value sent with the call, the caller is funded with it")
	flags.BoolVar(&args.ReadOnly, "static", false, "run as a static call")

	return callCmdIns
}

// Call runs args on a fresh state and prints the outcome.
func Call(w io.Writer, args *CallArgs, log logs.Logger) error {
	params, err := args.params()
	if err != nil {
		return err
	}
	env, err := newNativeEnv(args.ConfPath, args.Features, log)
	if err != nil {
		return err
	}

	state := sandbox.NewMemState()
	state.AddBalance(params.Caller, params.Value)
	executor := geth.NewExecutor(env.dispatcher, state, nil)
	res := executor.Call(params)
	printResult(w, env, params.Address, res, state)
	return nil
}

func (a *CallArgs) params() (*native.ExecParams, error) {
	if !common.IsHexAddress(a.To) {
		return nil, errors.Errorf("invalid target address %q", a.To)
	}
	if !common.IsHexAddress(a.From) {
		return nil, errors.Errorf("invalid caller address %q", a.From)
	}
	data, err := decodeHex(a.Data)
	if err != nil {
		return nil, errors.Wrap(err, "invalid calldata")
	}
	value, ok := new(big.Int).SetString(a.Value, 0)
	if !ok || value.Sign() < 0 {
		return nil, errors.Errorf("invalid value %q", a.Value)
	}
	return &native.ExecParams{
		Address:  common.HexToAddress(a.To),
		Caller:   common.HexToAddress(a.From),
		Data:     data,
		Gas:      a.Gas,
		Value:    value,
		ReadOnly: a.ReadOnly,
	}, nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func printResult(w io.Writer, env *nativeEnv, to common.Address, res *dispatch.ExecutionResult, state *sandbox.MemState) {
	target := "bytecode"
	if proto, ok := env.factory.Prototype(to); ok {
		target = native.NameOf(proto)
	}
	fmt.Fprintf(w, "target:   %s (%s)\n", to.Hex(), target)
	fmt.Fprintf(w, "gas used: %d\n", res.UsedGas)
	switch {
	case res.Err == nil:
		fmt.Fprintf(w, "output:   %s\n", hexutil.Encode(res.Return()))
	case res.Revert() != nil:
		fmt.Fprintf(w, "reverted: %s\n", hexutil.Encode(res.Revert()))
		if reason, ok := base.DecodeRevert(res.Revert()); ok {
			fmt.Fprintf(w, "reason:   %s\n", reason)
		}
	default:
		fmt.Fprintf(w, "error:    %v\n", res.Err)
	}
	fmt.Fprintf(w, "logs:     %d\n", len(state.Logs()))
	fmt.Fprintf(w, "root:     %s\n", state.Root().Hex())
}
