package cmd

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xuperchain/xnative/bcs/contract/evm/geth"
	"github.com/xuperchain/xnative/bcs/contract/native/crosschain"
	"github.com/xuperchain/xnative/bcs/contract/native/storage"
	"github.com/xuperchain/xnative/kernel/common/xaddress"
	"github.com/xuperchain/xnative/kernel/contract/sandbox"
	"github.com/xuperchain/xnative/kernel/native"
	"github.com/xuperchain/xnative/lib/logs"
)

// BenchArgs configures the bench command.
type BenchArgs struct {
	ConfPath string
	Features []string
	Workers  int
	Calls    int
}

// BenchReport is what every lane of a bench run agreed on.
type BenchReport struct {
	Workers int
	Calls   int
	Digest  common.Hash
	Root    common.Hash
	GasUsed uint64
	Elapsed time.Duration
}

type BenchCmd struct {
	BaseCmd
}

func GetBenchCmd() *BenchCmd {
	benchCmdIns := new(BenchCmd)

	var args BenchArgs

	benchCmdIns.cmd = &cobra.Command{
		Use:     "bench",
		Short:   "Run the same call sequence on parallel lanes and check they agree.",
		Example: "xnative bench --workers 8 --calls 1000",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := openLogger()
			if err != nil {
				return err
			}
			report, err := Bench(&args, log)
			if err != nil {
				return err
			}
			report.Print(cmd.OutOrStdout())
			return nil
		},
	}

	flags := benchCmdIns.cmd.Flags()
	flags.StringVarP(&args.ConfPath, "conf", "c", "", "native contract config file path")
	flags.StringSliceVar(&args.Features, "features", nil, "extra features to enable")
	flags.IntVarP(&args.Workers, "workers", "w", 4, "number of parallel lanes")
	flags.IntVarP(&args.Calls, "calls", "n", 1000, "calls per lane")

	return benchCmdIns
}

// Bench runs args.Calls calls on args.Workers independent lanes sharing one
// registry. Every lane must end with the same results and state root.
func Bench(args *BenchArgs, log logs.Logger) (*BenchReport, error) {
	if args.Workers <= 0 || args.Calls <= 0 {
		return nil, errors.Errorf("workers and calls must be positive, got %d and %d", args.Workers, args.Calls)
	}
	env, err := newNativeEnv(args.ConfPath, args.Features, log)
	if err != nil {
		return nil, err
	}
	calls, err := benchCalls(args.Calls)
	if err != nil {
		return nil, err
	}

	reports := make([]*BenchReport, args.Workers)
	start := time.Now()
	var g errgroup.Group
	for i := 0; i < args.Workers; i++ {
		i := i
		g.Go(func() error {
			reports[i] = runLane(env, calls)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	first := reports[0]
	for i, r := range reports[1:] {
		if r.Digest != first.Digest || r.Root != first.Root {
			return nil, errors.Errorf("lane %d diverged: digest %s root %s, want %s %s",
				i+1, r.Digest.Hex(), r.Root.Hex(), first.Digest.Hex(), first.Root.Hex())
		}
	}
	first.Workers = args.Workers
	first.Calls = args.Calls
	first.Elapsed = time.Since(start)
	return first, nil
}

func runLane(env *nativeEnv, calls []*native.ExecParams) *BenchReport {
	state := sandbox.NewMemState()
	executor := geth.NewExecutor(env.dispatcher, state, nil)

	report := &BenchReport{}
	hasher := crypto.NewKeccakState()
	var buf [8]byte
	for _, params := range calls {
		res := executor.Call(params)
		report.GasUsed += res.UsedGas

		binary.BigEndian.PutUint64(buf[:], res.UsedGas)
		hasher.Write(buf[:])
		if res.Err != nil {
			hasher.Write([]byte(res.Err.Error()))
		}
		hasher.Write(res.ReturnData)
	}
	hasher.Read(report.Digest[:])
	report.Root = state.Root()
	return report
}

// benchCalls mixes successful writes, reads, reverts and malformed calls.
func benchCalls(n int) ([]*native.ExecParams, error) {
	caller := common.HexToAddress("0x00000000000000000000000000000000000be9c4")
	calls := make([]*native.ExecParams, 0, n)
	for i := 0; i < n; i++ {
		var (
			to    = xaddress.SimpleStorageAddress
			input []byte
			err   error
		)
		v := big.NewInt(int64(i))
		switch i % 6 {
		case 0:
			input, err = storage.ABI.Pack("setUint", v)
		case 1:
			input, err = storage.ABI.Pack("incUint", big.NewInt(1))
		case 2:
			input, err = storage.ABI.Pack("pushArray", v)
		case 3:
			index := int64(0)
			if i%12 == 9 {
				// past the end, reverts
				index = int64(n)
			}
			input, err = storage.ABI.Pack("getArray", big.NewInt(index))
		case 4:
			input, err = storage.ABI.Pack("setMap", v, big.NewInt(int64(i*i)))
		case 5:
			to = xaddress.CrossChainVerifyAddress
			input, err = crosschain.ABI.Pack("verifyTransaction", []byte{0xc0})
		}
		if err != nil {
			return nil, errors.Wrap(err, "pack bench call failed")
		}
		calls = append(calls, &native.ExecParams{
			Address: to,
			Caller:  caller,
			Data:    input,
			Gas:     100000,
		})
	}
	return calls, nil
}

func (r *BenchReport) Print(w io.Writer) {
	fmt.Fprintf(w, "lanes:    %d x %d calls\n", r.Workers, r.Calls)
	fmt.Fprintf(w, "gas used: %d per lane\n", r.GasUsed)
	fmt.Fprintf(w, "digest:   %s\n", r.Digest.Hex())
	fmt.Fprintf(w, "root:     %s\n", r.Root.Hex())
	fmt.Fprintf(w, "elapsed:  %s\n", r.Elapsed)
}
