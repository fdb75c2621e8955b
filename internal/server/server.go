// Package server serves the transcription HTTP API.
//
// Routes:
//
//   - GET  /                     hello probe
//   - POST /vad/                 multipart upload (field "audio_file"), runs
//     one transcription job and returns the transcript
//   - GET  /transcriptions/{id}  fetch a stored transcription
//
// Health and metrics routes are mounted by the caller next to these.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"time"

	"github.com/MrWong99/voxscribe/internal/decode"
	"github.com/MrWong99/voxscribe/internal/observe"
	"github.com/MrWong99/voxscribe/internal/pipeline"
	"github.com/MrWong99/voxscribe/internal/store"
	"github.com/MrWong99/voxscribe/pkg/audio"
)

// UploadField is the multipart form field carrying the audio file.
const UploadField = "audio_file"

// DefaultMaxUploadBytes caps an upload when no limit is configured.
const DefaultMaxUploadBytes = 50 << 20

// AllowedContentTypes is the upload content-type allow-list.
var AllowedContentTypes = []string{
	"audio/vnd.wav",
	"audio/x-wav",
	"audio/mpeg",
	"audio/mp3",
	"audio/aac",
	"audio/wav",
	"application/octet-stream",
}

// Decoder turns an uploaded file into PCM.
type Decoder interface {
	Decode(ctx context.Context, data []byte, contentType string) (audio.PCM, error)
}

// Transcriber runs one transcription job over decoded PCM.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*pipeline.Result, error)
}

var (
	_ Decoder     = (*decode.Decoder)(nil)
	_ Transcriber = (*pipeline.Pipeline)(nil)
)

// Option configures a [Server].
type Option func(*Server)

// WithStore keeps every transcription in s so GET /transcriptions/{id} can
// return it. Without a store that route always answers 404.
func WithStore(s store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithMaxUploadBytes caps the accepted file size. n <= 0 keeps the default.
func WithMaxUploadBytes(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxUpload = n
		}
	}
}

// Server holds the API handlers. It is safe for concurrent use.
type Server struct {
	decoder     Decoder
	transcriber Transcriber
	store       store.Store
	maxUpload   int64
}

// New returns a Server that decodes uploads with dec and transcribes them
// with tr.
func New(dec Decoder, tr Transcriber, opts ...Option) (*Server, error) {
	if dec == nil {
		return nil, errors.New("server: decoder must not be nil")
	}
	if tr == nil {
		return nil, errors.New("server: transcriber must not be nil")
	}
	s := &Server{decoder: dec, transcriber: tr, maxUpload: DefaultMaxUploadBytes}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /vad/", s.handleTranscribe)
	mux.HandleFunc("GET /transcriptions/{id}", s.handleGet)
}

type transcribeResponse struct {
	ID             string `json:"id,omitempty"`
	Transcription  string `json:"transcription"`
	SpeechSegments int    `json:"speech_segments_count"`
	Chunks         int    `json:"chunks"`
}

type noSpeechResponse struct {
	Message        string `json:"message"`
	SpeechSegments int    `json:"speech_segments_count"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"Hello": "World"})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+64<<10)
	file, header, err := r.FormFile(UploadField)
	if err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit.", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if !slices.Contains(AllowedContentTypes, contentType) {
		writeError(w, http.StatusBadRequest, "Invalid audio format. Please upload a WAV or MP3 file.")
		return
	}
	if header.Size > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit.", s.maxUpload))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit.", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	log.Info("server: received audio file", "filename", header.Filename, "content_type", contentType, "bytes", len(data))

	pcm, err := s.decoder.Decode(ctx, data, contentType)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("server: client went away during decode", "err", err)
			return
		}
		if errors.Is(err, decode.ErrDecode) {
			writeError(w, http.StatusUnprocessableEntity, "Value error occurred: "+err.Error())
			return
		}
		log.Error("server: decode failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}

	res, err := s.transcriber.Transcribe(ctx, pcm.Data, pcm.SampleRate)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("server: client went away during transcription", "err", err)
			return
		}
		log.Error("server: transcription failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}

	if res.NoSpeech() {
		writeJSON(w, http.StatusOK, noSpeechResponse{Message: "No speech detected", SpeechSegments: 0})
		return
	}

	resp := transcribeResponse{
		Transcription:  res.Transcript,
		SpeechSegments: res.SpeechSegments,
		Chunks:         res.Chunks,
	}
	if s.store != nil {
		rec := store.Record{
			ID:             store.NewID(),
			Filename:       header.Filename,
			ContentType:    contentType,
			Transcript:     res.Transcript,
			SpeechSegments: res.SpeechSegments,
			Chunks:         res.Chunks,
			AudioDuration:  res.AudioDuration,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.store.Save(ctx, rec); err != nil {
			log.Warn("server: could not store transcription", "err", err)
		} else {
			resp.ID = rec.ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "Transcription not found")
		return
	}
	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Transcription not found")
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Error("server: store lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
