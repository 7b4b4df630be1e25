package cli

// ──────────────────────────────────────────────────────────────────────────────
// Contract Execution Engine CLI
//
// Root commands:
//   contract   – deploy/call/exec/inspect sandboxed contract code
//   auth       – grant/revoke/check deploy and contract call authorization
//   quota      – config/record/transfer against the per-asset transfer quota
//
// Layout rules:
//   • Command objects declared first; export consolidated at bottom.
//   • PersistentPreRunE wires middleware once (genesis load, service wiring).
//   • contract deploy/call/exec parse flags in PreRunE and stash them on the
//     command context; the other leaves read their flags in RunE.
//
// Env variables (add to .env):
//   CEE_GENESIS_PATH   – path to the genesis/bootstrap YAML (required)
//   CEE_CALLER         – hex address used as the calling account for CLI ops
//   LOG_LEVEL          – trace|debug|info|warn|error (default info)
//
// ──────────────────────────────────────────────────────────────────────────────

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synnergy-network/core"
)

// ──────────────────────────────────────────────────────────────────────────────
// Globals + lazy-init middleware
// ──────────────────────────────────────────────────────────────────────────────

var (
	ceeLogger = logrus.StandardLogger()
	ceeOnce   sync.Once
	ceeEngine *core.ContractExecutionEngine
	ceeQuota  *core.TransferQuotaEngine
	ceeAsset  *core.AssetLedger
	ceeKyc    *core.KycEngine
	ceeCaller core.Address
)

func initCeeMiddleware(cmd *cobra.Command, _ []string) error {
	var err error
	ceeOnce.Do(func() {
		core.LoadDotEnv()

		lvlStr := os.Getenv("LOG_LEVEL")
		if lvlStr == "" {
			lvlStr = "info"
		}
		lvl, e := logrus.ParseLevel(lvlStr)
		if e != nil {
			err = fmt.Errorf("invalid LOG_LEVEL: %w", e)
			return
		}
		ceeLogger.SetLevel(lvl)

		genesisPath := os.Getenv("CEE_GENESIS_PATH")
		if genesisPath == "" {
			err = fmt.Errorf("CEE_GENESIS_PATH env not set")
			return
		}
		cfg, e := core.LoadGenesisConfig(genesisPath)
		if e != nil {
			err = fmt.Errorf("load genesis: %w", e)
			return
		}
		_, _, kyc, quota, asset, engine, e := core.Bootstrap(cfg)
		if e != nil {
			err = fmt.Errorf("bootstrap: %w", e)
			return
		}
		ceeEngine = engine
		ceeQuota = quota
		ceeAsset = asset
		ceeKyc = kyc

		callerStr := os.Getenv("CEE_CALLER")
		if callerStr == "" {
			err = fmt.Errorf("CEE_CALLER env not set")
			return
		}
		caller, e := core.ParseAddress(callerStr)
		if e != nil {
			err = fmt.Errorf("invalid CEE_CALLER: %w", e)
			return
		}
		ceeCaller = caller

		ceeLogger.WithFields(logrus.Fields{"genesis": genesisPath, "caller": callerStr}).Info("contract execution engine wired")
	})
	return err
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper utilities
// ──────────────────────────────────────────────────────────────────────────────

func ceeParseAddr(h string) (core.Address, error) {
	a, err := core.ParseAddress(h)
	if err != nil {
		return core.Address{}, fmt.Errorf("invalid address %s: %w", h, err)
	}
	return a, nil
}

func ceeParseHexBytes(h string) ([]byte, error) {
	if h == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("args must be hex bytes: %w", err)
	}
	return b, nil
}

func ceeTxContext(cyclesLimit uint64) *core.ServiceContext {
	txHash := core.Hash{}
	return core.NewServiceContext(ceeCaller, &txHash, 0, 0, cyclesLimit)
}

func ceeReadContext(cyclesLimit uint64) *core.ServiceContext {
	return core.NewServiceContext(ceeCaller, nil, 0, 0, cyclesLimit)
}

// ──────────────────────────────────────────────────────────────────────────────
// contract command tree
// ──────────────────────────────────────────────────────────────────────────────

type ceeDeployFlags struct {
	codePath string
	interp   string
	initArgs string
	cycles   uint64
}

func ceeHandleDeploy(cmd *cobra.Command, _ []string) error {
	df := cmd.Context().Value(ceeFlagsKey("deploy")).(ceeDeployFlags)
	code, err := os.ReadFile(df.codePath)
	if err != nil {
		return err
	}
	initArgs, err := ceeParseHexBytes(df.initArgs)
	if err != nil {
		return err
	}
	kind := core.InterpreterBinary
	if df.interp == "duktape" {
		kind = core.InterpreterDuktape
	}
	res, err := ceeEngine.Deploy(ceeTxContext(df.cycles), code, kind, initArgs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deployed at %s\n", res.Address.String())
	return nil
}

type ceeCallFlags struct {
	args   string
	cycles uint64
}

func ceeHandleCall(cmd *cobra.Command, args []string) error {
	cf := cmd.Context().Value(ceeFlagsKey("call")).(ceeCallFlags)
	addr, err := ceeParseAddr(args[0])
	if err != nil {
		return err
	}
	argBytes, err := ceeParseHexBytes(cf.args)
	if err != nil {
		return err
	}
	out, err := ceeEngine.Call(ceeReadContext(cf.cycles), addr, argBytes)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%x\n", out)
	return nil
}

func ceeHandleExec(cmd *cobra.Command, args []string) error {
	cf := cmd.Context().Value(ceeFlagsKey("exec")).(ceeCallFlags)
	addr, err := ceeParseAddr(args[0])
	if err != nil {
		return err
	}
	argBytes, err := ceeParseHexBytes(cf.args)
	if err != nil {
		return err
	}
	out, err := ceeEngine.Exec(ceeTxContext(cf.cycles), addr, argBytes)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%x\n", out)
	return nil
}

func ceeHandleInspect(cmd *cobra.Command, args []string) error {
	addr, err := ceeParseAddr(args[0])
	if err != nil {
		return err
	}
	includeCode, _ := cmd.Flags().GetBool("code")
	info, err := ceeEngine.GetContract(ceeReadContext(100_000), addr, includeCode, nil)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

var contractCmd = &cobra.Command{
	Use:               "contract",
	Short:             "Deploy, call and inspect sandboxed contracts",
	PersistentPreRunE: initCeeMiddleware,
}

var contractDeployCmd = &cobra.Command{
	Use:   "deploy <code-path>",
	Short: "Deploy contract code and run init",
	Args:  cobra.ExactArgs(1),
	RunE:  ceeHandleDeploy,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		df := ceeDeployFlags{codePath: args[0]}
		df.interp, _ = cmd.Flags().GetString("interp")
		df.initArgs, _ = cmd.Flags().GetString("init-args")
		df.cycles, _ = cmd.Flags().GetUint64("cycles")
		cmd.SetContext(context.WithValue(cmd.Context(), ceeFlagsKey("deploy"), df))
		return nil
	},
}

var contractCallCmd = &cobra.Command{
	Use:   "call <address>",
	Short: "Call a contract method in a readonly context",
	Args:  cobra.ExactArgs(1),
	RunE:  ceeHandleCall,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cf := ceeCallFlags{}
		cf.args, _ = cmd.Flags().GetString("args")
		cf.cycles, _ = cmd.Flags().GetUint64("cycles")
		cmd.SetContext(context.WithValue(cmd.Context(), ceeFlagsKey("call"), cf))
		return nil
	},
}

var contractExecCmd = &cobra.Command{
	Use:   "exec <address>",
	Short: "Call a contract method in a writeable transaction context",
	Args:  cobra.ExactArgs(1),
	RunE:  ceeHandleExec,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cf := ceeCallFlags{}
		cf.args, _ = cmd.Flags().GetString("args")
		cf.cycles, _ = cmd.Flags().GetUint64("cycles")
		cmd.SetContext(context.WithValue(cmd.Context(), ceeFlagsKey("exec"), cf))
		return nil
	},
}

var contractInspectCmd = &cobra.Command{
	Use:   "inspect <address>",
	Short: "Show deployed contract metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  ceeHandleInspect,
}

func init() {
	contractDeployCmd.Flags().String("interp", "binary", "interpreter kind: binary|duktape")
	contractDeployCmd.Flags().String("init-args", "", "hex-encoded init args")
	contractDeployCmd.Flags().Uint64("cycles", 10_000_000, "cycles limit")

	contractCallCmd.Flags().String("args", "", "hex-encoded call args")
	contractCallCmd.Flags().Uint64("cycles", 10_000_000, "cycles limit")

	contractExecCmd.Flags().String("args", "", "hex-encoded call args")
	contractExecCmd.Flags().Uint64("cycles", 10_000_000, "cycles limit")

	contractInspectCmd.Flags().Bool("code", false, "include raw code bytes in the response")

	contractCmd.AddCommand(contractDeployCmd, contractCallCmd, contractExecCmd, contractInspectCmd)
}

// ──────────────────────────────────────────────────────────────────────────────
// auth command tree
// ──────────────────────────────────────────────────────────────────────────────

func ceeHandleAuthGrant(cmd *cobra.Command, args []string) error {
	addr, err := ceeParseAddr(args[0])
	if err != nil {
		return err
	}
	kind, _ := cmd.Flags().GetString("kind")
	ctx := ceeReadContext(100_000)
	switch kind {
	case "deploy":
		err = ceeEngine.GrantDeployAuth(ctx, addr)
	case "contract":
		err = ceeEngine.ApproveContract(ctx, addr)
	default:
		return fmt.Errorf("--kind must be deploy or contract, got %q", kind)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "granted")
	return nil
}

func ceeHandleAuthRevoke(cmd *cobra.Command, args []string) error {
	addr, err := ceeParseAddr(args[0])
	if err != nil {
		return err
	}
	kind, _ := cmd.Flags().GetString("kind")
	ctx := ceeReadContext(100_000)
	switch kind {
	case "deploy":
		err = ceeEngine.RevokeDeployAuth(ctx, addr)
	case "contract":
		err = ceeEngine.RevokeContract(ctx, addr)
	default:
		return fmt.Errorf("--kind must be deploy or contract, got %q", kind)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "revoked")
	return nil
}

func ceeHandleAuthCheck(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	addrs := make([]core.Address, len(args))
	for i, a := range args {
		addr, err := ceeParseAddr(a)
		if err != nil {
			return err
		}
		addrs[i] = addr
	}
	switch kind {
	case "deploy":
		granted := ceeEngine.CheckDeployAuth(addrs)
		for _, a := range granted {
			fmt.Fprintln(cmd.OutOrStdout(), a.String())
		}
	case "contract":
		for _, a := range addrs {
			info, err := ceeEngine.GetContract(ceeReadContext(100_000), a, false, nil)
			if err != nil {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s authorizer=%s\n", a.String(), info.Authorizer.String())
		}
	default:
		return fmt.Errorf("--kind must be deploy or contract, got %q", kind)
	}
	return nil
}

var authCmd = &cobra.Command{
	Use:               "auth",
	Short:             "Grant, revoke and check deploy/contract authorization",
	PersistentPreRunE: initCeeMiddleware,
}

var authGrantCmd = &cobra.Command{Use: "grant <address>", Short: "Grant an authorization kind to an address", Args: cobra.ExactArgs(1), RunE: ceeHandleAuthGrant}
var authRevokeCmd = &cobra.Command{Use: "revoke <address>", Short: "Revoke an authorization kind from an address", Args: cobra.ExactArgs(1), RunE: ceeHandleAuthRevoke}
var authCheckCmd = &cobra.Command{Use: "check <address>...", Short: "Check an authorization kind for one or more addresses", Args: cobra.MinimumNArgs(1), RunE: ceeHandleAuthCheck}

func init() {
	authGrantCmd.Flags().String("kind", "deploy", "authorization kind: deploy|contract")
	authRevokeCmd.Flags().String("kind", "deploy", "authorization kind: deploy|contract")
	authCheckCmd.Flags().String("kind", "deploy", "authorization kind: deploy|contract")
	authCmd.AddCommand(authGrantCmd, authRevokeCmd, authCheckCmd)
}

// ──────────────────────────────────────────────────────────────────────────────
// quota command tree
// ──────────────────────────────────────────────────────────────────────────────

func ceeParseHash(h string) (core.Hash, error) {
	var out core.Hash
	b, err := hex.DecodeString(h)
	if err != nil || len(b) != len(out) {
		return out, fmt.Errorf("invalid asset id %s", h)
	}
	copy(out[:], b)
	return out, nil
}

func ceeHandleQuotaConfig(cmd *cobra.Command, args []string) error {
	assetID, err := ceeParseHash(args[0])
	if err != nil {
		return err
	}
	ctx := ceeReadContext(100_000).WithExtra([]byte("asset_service"))
	if err := ceeQuota.CreateAssetConfig(ctx, assetID, ceeCaller); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "configured")
	return nil
}

func ceeHandleQuotaRecord(cmd *cobra.Command, args []string) error {
	assetID, err := ceeParseHash(args[0])
	if err != nil {
		return err
	}
	account, err := ceeParseAddr(args[1])
	if err != nil {
		return err
	}
	rec, err := ceeQuota.GetRecord(ceeReadContext(100_000), assetID, account)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func ceeHandleQuotaTransfer(cmd *cobra.Command, args []string) error {
	assetID, err := ceeParseHash(args[0])
	if err != nil {
		return err
	}
	to, err := ceeParseAddr(args[1])
	if err != nil {
		return err
	}
	value, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return err
	}
	ctx := ceeTxContext(100_000)
	if err := ceeAsset.Transfer(ctx, assetID, to, value); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "transferred")
	return nil
}

var quotaCmd = &cobra.Command{
	Use:               "quota",
	Short:             "Configure and exercise the per-asset transfer quota",
	PersistentPreRunE: initCeeMiddleware,
}

var quotaConfigCmd = &cobra.Command{Use: "config <asset-id>", Short: "Create a quota config for an asset", Args: cobra.ExactArgs(1), RunE: ceeHandleQuotaConfig}
var quotaRecordCmd = &cobra.Command{Use: "record <asset-id> <account>", Short: "Show the quota usage record for an account", Args: cobra.ExactArgs(2), RunE: ceeHandleQuotaRecord}
var quotaTransferCmd = &cobra.Command{Use: "transfer <asset-id> <to> <value>", Short: "Transfer value subject to the asset's quota", Args: cobra.ExactArgs(3), RunE: ceeHandleQuotaTransfer}

func init() {
	quotaCmd.AddCommand(quotaConfigCmd, quotaRecordCmd, quotaTransferCmd)
}

// ──────────────────────────────────────────────────────────────────────────────
// Consolidated export
// ──────────────────────────────────────────────────────────────────────────────

type ceeFlagsKey string

var ContractCmd = contractCmd
var AuthCmd = authCmd
var QuotaCmd = quotaCmd

func RegisterCee(root *cobra.Command) {
	root.AddCommand(ContractCmd, AuthCmd, QuotaCmd)
}
