package vertex

import (
	"errors"
	"fmt"
	"strings"

	"dreamframe/internal/domain"
)

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string       `json:"prompt"`
	Image  *inlineImage `json:"image,omitempty"`
}

type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

type predictParameters struct {
	AspectRatio     string `json:"aspectRatio"`
	DurationSeconds int    `json:"durationSeconds"`
	SampleCount     int    `json:"sampleCount"`
	StorageURI      string `json:"storageUri,omitempty"`
	GenerateAudio   *bool  `json:"generateAudio,omitempty"`
}

type operationHandle struct {
	Name string `json:"name"`
}

type fetchRequest struct {
	OperationName string `json:"operationName"`
}

type operation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		Videos                []generatedVideo `json:"videos"`
		RaiMediaFilteredCount int              `json:"raiMediaFilteredCount"`
	} `json:"response"`
}

type generatedVideo struct {
	GCSURI             string `json:"gcsUri"`
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

func (o *operation) status() (domain.JobStatus, string) {
	if !o.Done {
		return domain.JobStatusRunning, ""
	}
	if o.Error != nil && (o.Error.Code != 0 || o.Error.Message != "") {
		return domain.JobStatusFailed, fmt.Sprintf("code %d: %s", o.Error.Code, o.Error.Message)
	}
	return domain.JobStatusSucceeded, ""
}

// firstVideo returns the first usable video. A finished operation without one is
// a failed generation, commonly because every sample was filtered.
func (o *operation) firstVideo() (*generatedVideo, error) {
	if !o.Done {
		return nil, errors.New("operation not finished")
	}
	if o.Response == nil {
		return nil, errors.New("operation finished without a response")
	}
	for i := range o.Response.Videos {
		v := &o.Response.Videos[i]
		if strings.TrimSpace(v.BytesBase64Encoded) != "" || strings.TrimSpace(v.GCSURI) != "" {
			return v, nil
		}
	}
	if n := o.Response.RaiMediaFilteredCount; n > 0 {
		return nil, fmt.Errorf("no videos returned, %d filtered by safety checks", n)
	}
	return nil, errors.New("no videos returned")
}
