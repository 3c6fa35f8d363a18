package handlers

// Features are the runtime toggles reported by /health. A disabled feature
// answers 503 on its endpoints.
type Features struct {
	Streaming   bool `json:"streaming"`
	Transcoding bool `json:"transcoding"`
	Analytics   bool `json:"analytics"`
	Thumbnails  bool `json:"thumbnails"`
}

func AllFeatures() Features {
	return Features{Streaming: true, Transcoding: true, Analytics: true, Thumbnails: true}
}
