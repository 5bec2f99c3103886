package dto

type AssetRequest struct {
	Kind    string `json:"kind"` // native / jetton / erc20
	Token   string `json:"token,omitempty"`
	Amount  string `json:"amount"` // decimal string in smallest units
	Network string `json:"network"`
}

type CreateOrderRequest struct {
	Maker            string       `json:"maker"`
	MakerAsset       AssetRequest `json:"maker_asset"`
	TakerAsset       AssetRequest `json:"taker_asset"`
	SourceChain      string       `json:"source_chain"`
	DestinationChain string       `json:"destination_chain"`
	RefundAddress    string       `json:"refund_address"`
	TargetAddress    string       `json:"target_address"`

	// SecretHash lets the maker keep the secret client side. When empty the
	// resolver generates and commits the hashlock itself.
	SecretHash string `json:"secret_hash,omitempty"`

	ResolverFeeBPS int `json:"resolver_fee_bps,omitempty"`

	TimelockDuration int64 `json:"timelock_duration"`
	FinalityTimelock int64 `json:"finality_timelock"`
	ExclusivePeriod  int64 `json:"exclusive_period"`

	MakerSafetyDeposit string `json:"maker_safety_deposit,omitempty"`
	TakerSafetyDeposit string `json:"taker_safety_deposit,omitempty"`
}

type CancelOrderRequest struct {
	Caller string `json:"caller,omitempty"`
}
