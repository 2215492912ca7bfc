package devexit

type tokenAccountsResponse struct {
	Value []tokenAccountEntry `json:"value"`
}

type tokenAccountEntry struct {
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					TokenAmount struct {
						UIAmount float64 `json:"uiAmount"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}
