package metadata

import "encoding/json"

// MergeObject applies updates on top of an existing JSON object and returns
// the new JSON text together with its projection rows. A nil existing value
// starts from an empty object; number precision is kept via json.Number.
func MergeObject(existingJSON *string, updates map[string]any) (string, []Row, error) {
	obj := map[string]any{}
	if existingJSON != nil && *existingJSON != "" {
		decoded, err := DecodeObject([]byte(*existingJSON))
		if err != nil {
			return "", nil, err
		}
		obj = decoded
	}
	for k, v := range updates {
		if v == nil {
			delete(obj, k)
			continue
		}
		obj[k] = v
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return "", nil, err
	}
	return string(b), RowsForObject(obj), nil
}
