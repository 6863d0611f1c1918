package smarthandles

import (
	"math/big"

	"github.com/Salvionied/apollo/serialization/PlutusData"
)

// RouteRedeemer is the single mode spend redeemer. It points the validator
// at the spent input and the output that replaces it.
func RouteRedeemer(inputIndex, outputIndex int) PlutusData.PlutusData {
	return constrData(0,
		intData(big.NewInt(int64(inputIndex))),
		intData(big.NewInt(int64(outputIndex))),
	)
}

func ReclaimRedeemer() PlutusData.PlutusData {
	return constrData(1)
}

// BatchSpendRedeemer defers validation to the withdrawal validator.
func BatchSpendRedeemer() PlutusData.PlutusData {
	return constrData(0)
}

// WithdrawalRedeemer carries the positions of every routed input and of the
// output each one is reproduced at.
func WithdrawalRedeemer(inputIndices, outputIndices []int) PlutusData.PlutusData {
	return constrData(0, intList(inputIndices), intList(outputIndices))
}

func intList(ns []int) PlutusData.PlutusData {
	items := make([]PlutusData.PlutusData, 0, len(ns))
	for _, n := range ns {
		items = append(items, intData(big.NewInt(int64(n))))
	}
	return listData(items)
}
