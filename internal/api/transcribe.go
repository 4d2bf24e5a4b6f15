package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/expertline/expertline/internal/observe"
)

var (
	errInvalidMultipart = errors.New("invalid multipart body")
	errMissingAudioFile = errors.New("audio file is required")
	errReadAudio        = errors.New("failed to read audio upload")
)

type transcribeResponse struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript"`
}

// handleTranscribe converts an uploaded recording to text without running a
// call turn. Useful for clients that want to show the caller what was heard
// before committing to a question.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	audioBytes, contentType, err := readTranscribeAudio(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(audioBytes) == 0 {
		writeError(w, http.StatusBadRequest, "audio is required")
		return
	}

	result, err := s.stt.Transcribe(ctx, audioBytes, contentType)
	if err != nil {
		observe.Logger(ctx).Error("transcription failed", "error", err)
		s.metrics.RecordProviderError(ctx, "stt", "transcribe")
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{
		Success:    true,
		Transcript: strings.TrimSpace(result.Text),
	})
}

func readTranscribeAudio(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, "", errInvalidMultipart
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			return nil, "", errMissingAudioFile
		}
		defer file.Close()
		audioBytes, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return nil, "", errReadAudio
		}
		return audioBytes, header.Header.Get("Content-Type"), nil
	}

	audioBytes, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, "", errReadAudio
	}
	return audioBytes, mediaType, nil
}
