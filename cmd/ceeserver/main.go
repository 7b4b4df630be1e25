package main

import (
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	core "synnergy-network/core"
)

var (
	engine *core.ContractExecutionEngine
	quota  *core.TransferQuotaEngine
	asset  *core.AssetLedger
	caller core.Address
)

func main() {
	core.LoadDotEnv()

	genesisPath := os.Getenv("CEE_GENESIS_PATH")
	if genesisPath == "" {
		log.Fatal("CEE_GENESIS_PATH env not set")
	}
	cfg, err := core.LoadGenesisConfig(genesisPath)
	if err != nil {
		log.Fatalf("load genesis: %v", err)
	}
	_, _, _, q, a, e, err := core.Bootstrap(cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	engine, quota, asset = e, q, a

	callerStr := os.Getenv("CEE_CALLER")
	if callerStr == "" {
		log.Fatal("CEE_CALLER env not set")
	}
	caller, err = core.ParseAddress(callerStr)
	if err != nil {
		log.Fatalf("invalid CEE_CALLER: %v", err)
	}

	addr := os.Getenv("CEE_API_ADDR")
	if addr == "" {
		addr = ":8083"
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/contracts", handleDeploy)
	r.Get("/api/contracts/{addr}", handleInspect)
	r.Post("/api/contracts/{addr}/call", handleCall)
	r.Post("/api/contracts/{addr}/exec", handleExec)

	r.Post("/api/auth/grant", handleAuthGrant)
	r.Post("/api/auth/revoke", handleAuthRevoke)
	r.Get("/api/auth/check", handleAuthCheck)

	r.Post("/api/quota/{assetID}/config", handleQuotaConfig)
	r.Get("/api/quota/{assetID}/record/{account}", handleQuotaRecord)
	r.Post("/api/quota/{assetID}/transfer", handleQuotaTransfer)

	log.Printf("contract execution engine API listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal(err)
	}
}

func readCtx(cyclesLimit uint64) *core.ServiceContext {
	return core.NewServiceContext(caller, nil, 0, 0, cyclesLimit)
}

func txCtx(cyclesLimit uint64) *core.ServiceContext {
	txHash := core.Hash{}
	return core.NewServiceContext(caller, &txHash, 0, 0, cyclesLimit)
}

func parseAddrParam(w http.ResponseWriter, r *http.Request, name string) (core.Address, bool) {
	a, err := core.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return core.Address{}, false
	}
	return a, true
}

func parseHashParam(w http.ResponseWriter, r *http.Request, name string) (core.Hash, bool) {
	var h core.Hash
	b, err := hex.DecodeString(chi.URLParam(r, name))
	if err != nil || len(b) != len(h) {
		http.Error(w, "invalid asset id", http.StatusBadRequest)
		return h, false
	}
	copy(h[:], b)
	return h, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type deployRequest struct {
	CodeHex     string `json:"code_hex"`
	Interpreter string `json:"interpreter"`
	InitArgsHex string `json:"init_args_hex"`
	Cycles      uint64 `json:"cycles"`
}

func handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code, err := hex.DecodeString(req.CodeHex)
	if err != nil {
		http.Error(w, "code_hex must be hex", http.StatusBadRequest)
		return
	}
	var initArgs []byte
	if req.InitArgsHex != "" {
		initArgs, err = hex.DecodeString(req.InitArgsHex)
		if err != nil {
			http.Error(w, "init_args_hex must be hex", http.StatusBadRequest)
			return
		}
	}
	kind := core.InterpreterBinary
	if req.Interpreter == "duktape" {
		kind = core.InterpreterDuktape
	}
	cycles := req.Cycles
	if cycles == 0 {
		cycles = 10_000_000
	}
	res, err := engine.Deploy(txCtx(cycles), code, kind, initArgs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func handleInspect(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddrParam(w, r, "addr")
	if !ok {
		return
	}
	includeCode := r.URL.Query().Get("code") == "true"
	info, err := engine.GetContract(readCtx(100_000), addr, includeCode, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

type callRequest struct {
	ArgsHex string `json:"args_hex"`
	Cycles  uint64 `json:"cycles"`
}

func handleCall(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddrParam(w, r, "addr")
	if !ok {
		return
	}
	var req callRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	argBytes, err := hex.DecodeString(req.ArgsHex)
	if err != nil && req.ArgsHex != "" {
		http.Error(w, "args_hex must be hex", http.StatusBadRequest)
		return
	}
	cycles := req.Cycles
	if cycles == 0 {
		cycles = 10_000_000
	}
	out, err := engine.Call(readCtx(cycles), addr, argBytes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"result_hex": hex.EncodeToString(out)})
}

func handleExec(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddrParam(w, r, "addr")
	if !ok {
		return
	}
	var req callRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	argBytes, err := hex.DecodeString(req.ArgsHex)
	if err != nil && req.ArgsHex != "" {
		http.Error(w, "args_hex must be hex", http.StatusBadRequest)
		return
	}
	cycles := req.Cycles
	if cycles == 0 {
		cycles = 10_000_000
	}
	out, err := engine.Exec(txCtx(cycles), addr, argBytes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"result_hex": hex.EncodeToString(out)})
}

type authRequest struct {
	Addr string `json:"addr"`
	Kind string `json:"kind"`
}

func handleAuthGrant(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	addr, err := core.ParseAddress(req.Addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := readCtx(100_000)
	switch req.Kind {
	case "deploy":
		err = engine.GrantDeployAuth(ctx, addr)
	case "contract":
		err = engine.ApproveContract(ctx, addr)
	default:
		http.Error(w, "kind must be deploy or contract", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleAuthRevoke(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	addr, err := core.ParseAddress(req.Addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := readCtx(100_000)
	switch req.Kind {
	case "deploy":
		err = engine.RevokeDeployAuth(ctx, addr)
	case "contract":
		err = engine.RevokeContract(ctx, addr)
	default:
		http.Error(w, "kind must be deploy or contract", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	addrStrs := r.URL.Query()["addr"]
	addrs := make([]core.Address, 0, len(addrStrs))
	for _, s := range addrStrs {
		a, err := core.ParseAddress(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		addrs = append(addrs, a)
	}
	switch kind {
	case "deploy":
		writeJSON(w, engine.CheckDeployAuth(addrs))
	case "contract":
		type result struct {
			Address    string `json:"address"`
			Authorizer string `json:"authorizer"`
		}
		out := make([]result, 0, len(addrs))
		for _, a := range addrs {
			info, err := engine.GetContract(readCtx(100_000), a, false, nil)
			if err != nil {
				continue
			}
			out = append(out, result{Address: a.String(), Authorizer: info.Authorizer.String()})
		}
		writeJSON(w, out)
	default:
		http.Error(w, "kind must be deploy or contract", http.StatusBadRequest)
	}
}

func handleQuotaConfig(w http.ResponseWriter, r *http.Request) {
	assetID, ok := parseHashParam(w, r, "assetID")
	if !ok {
		return
	}
	ctx := readCtx(100_000).WithExtra([]byte("asset_service"))
	if err := quota.CreateAssetConfig(ctx, assetID, caller); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleQuotaRecord(w http.ResponseWriter, r *http.Request) {
	assetID, ok := parseHashParam(w, r, "assetID")
	if !ok {
		return
	}
	account, ok := parseAddrParam(w, r, "account")
	if !ok {
		return
	}
	rec, err := quota.GetRecord(readCtx(100_000), assetID, account)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

type quotaTransferRequest struct {
	To    string `json:"to"`
	Value uint64 `json:"value"`
}

func handleQuotaTransfer(w http.ResponseWriter, r *http.Request) {
	assetID, ok := parseHashParam(w, r, "assetID")
	if !ok {
		return
	}
	var req quotaTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := core.ParseAddress(req.To)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := asset.Transfer(txCtx(100_000), assetID, to, req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
