package store

import "encoding/json"

// encodeSuccessAction/decodeSuccessAction store the LNURL-pay success action
// as a single JSON column rather than four nullable scalar columns, since
// its shape varies by tag (message/url/aes) and is never queried on.
func encodeSuccessAction(sa *SuccessAction) (string, error) {
	b, err := json.Marshal(sa)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeSuccessAction(raw string) (*SuccessAction, error) {
	var sa SuccessAction
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return nil, err
	}
	return &sa, nil
}
