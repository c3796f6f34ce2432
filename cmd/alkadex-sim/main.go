package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/holiman/uint256"

	"alkadex/config"
	"alkadex/core/types"
	"alkadex/native/amm"
	"alkadex/native/lending"
	"alkadex/native/token"
	"alkadex/observability/logging"
	"alkadex/storage"
	"alkadex/vm"
)

func main() {
	configPath := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "Run against an in-memory database instead of LevelDB")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("alkadex-sim", cfg.Environment)

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	rt := vm.NewRuntime(db)
	rt.SetLogger(logger)
	rt.SetBlock(cfg.StartHeight, cfg.StartHeight*cfg.BlockTime)
	rt.RegisterTemplate(amm.PoolTemplate, func(store *vm.State) vm.Contract {
		return amm.NewPool(store)
	})
	rt.RegisterTemplate("amm/factory", func(store *vm.State) vm.Contract {
		return amm.NewFactory(store)
	})
	rt.RegisterTemplate("lending/loan", func(store *vm.State) vm.Contract {
		return lending.NewEngine(store)
	})
	rt.RegisterTemplate("token/methane", func(store *vm.State) vm.Contract {
		return token.New("METHANE")(store)
	})
	rt.RegisterTemplate("token/ethane", func(store *vm.State) vm.Contract {
		return token.New("ETHANE")(store)
	})

	if err := runScenario(rt, cfg, logger.With("component", "scenario")); err != nil {
		logger.Error("scenario failed", "error", err)
		os.Exit(1)
	}
}

// runScenario drives a small end-to-end session: two tokens, a pool, a swap
// through the router and a full loan lifecycle.
func runScenario(rt *vm.Runtime, cfg *config.Config, log *slog.Logger) error {
	user := types.NewAlkaneID(1, 1)
	advance := func(blocks uint64) {
		height := rt.Height() + blocks
		rt.SetBlock(height, height*cfg.BlockTime)
	}

	methane, _, err := rt.Deploy(user, "token/methane",
		[]*uint256.Int{uint256.NewInt(token.OpInitialize), uint256.NewInt(100_000_000)}, types.TransferParcel{})
	if err != nil {
		return err
	}
	ethane, _, err := rt.Deploy(user, "token/ethane",
		[]*uint256.Int{uint256.NewInt(token.OpInitialize), uint256.NewInt(100_000_000)}, types.TransferParcel{})
	if err != nil {
		return err
	}
	factory, _, err := rt.Deploy(user, "amm/factory",
		[]*uint256.Int{uint256.NewInt(amm.FactoryOpInitialize)}, types.TransferParcel{})
	if err != nil {
		return err
	}
	log.Info("deployed", "methane", methane.String(), "ethane", ethane.String(), "factory", factory.String())

	deposit := types.NewTransferParcel(
		types.Transfer{ID: methane, Value: uint256.NewInt(10_000_000)},
		types.Transfer{ID: ethane, Value: uint256.NewInt(10_000_000)},
	)
	if _, err := rt.Execute(user, factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpCreateNewPool),
		&methane.Block, &methane.Tx,
		&ethane.Block, &ethane.Tx,
		uint256.NewInt(10_000_000), uint256.NewInt(10_000_000),
	}, deposit); err != nil {
		return err
	}
	resp, err := rt.Execute(user, factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpFindExistingPoolID),
		&methane.Block, &methane.Tx,
		&ethane.Block, &ethane.Tx,
	}, types.TransferParcel{})
	if err != nil {
		return err
	}
	pool, err := types.AlkaneIDFromBytes(resp.Data)
	if err != nil {
		return err
	}
	shares, err := rt.Balance(user, pool)
	if err != nil {
		return err
	}
	log.Info("pool created", "pool", pool.String(), "shares", shares.Dec())

	advance(1)
	payment := types.NewTransferParcel(
		types.Transfer{ID: methane, Value: uint256.NewInt(250_000)},
	)
	if _, err := rt.Execute(user, factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpSwapExactTokensForTokens),
		uint256.NewInt(2),
		&methane.Block, &methane.Tx,
		&ethane.Block, &ethane.Tx,
		uint256.NewInt(250_000), uint256.NewInt(1),
		uint256.NewInt(rt.Height() + 10),
	}, payment); err != nil {
		return err
	}
	received, err := rt.Balance(user, ethane)
	if err != nil {
		return err
	}
	log.Info("swap settled", "ethane_balance", received.Dec())

	loan, _, err := rt.Deploy(user, "lending/loan", []*uint256.Int{
		uint256.NewInt(lending.OpInitWithLoanOffer),
		&methane.Block, &methane.Tx, uint256.NewInt(2_000_000),
		&ethane.Block, &ethane.Tx, uint256.NewInt(1_000_000),
		uint256.NewInt(5_256), uint256.NewInt(500),
	}, types.NewTransferParcel(types.Transfer{ID: ethane, Value: uint256.NewInt(1_000_000)}))
	if err != nil {
		return err
	}
	if _, err := rt.Execute(user, loan, []*uint256.Int{uint256.NewInt(lending.OpTakeLoanWithCollateral)},
		types.NewTransferParcel(types.Transfer{ID: methane, Value: uint256.NewInt(2_000_000)})); err != nil {
		return err
	}
	advance(100)
	resp, err = rt.Execute(user, loan, []*uint256.Int{uint256.NewInt(lending.OpGetRepaymentAmount)}, types.TransferParcel{})
	if err != nil {
		return err
	}
	repayment, err := types.U128FromBytes(resp.Data)
	if err != nil {
		return err
	}
	if _, err := rt.Execute(user, loan, []*uint256.Int{uint256.NewInt(lending.OpRepayLoan)},
		types.NewTransferParcel(types.Transfer{ID: ethane, Value: repayment})); err != nil {
		return err
	}
	if _, err := rt.Execute(user, loan, []*uint256.Int{uint256.NewInt(lending.OpClaimRepayment)},
		types.NewTransferParcel(types.Transfer{ID: loan, Value: uint256.NewInt(1)})); err != nil {
		return err
	}
	log.Info("loan settled", "loan", loan.String(), "repayment", repayment.Dec(), "height", rt.Height())
	return nil
}
