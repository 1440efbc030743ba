package request

type SubmitFetchRequest struct {
	URL        string `json:"url"`
	ForceFetch bool   `json:"force_fetch"`
}
