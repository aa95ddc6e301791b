package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/ocrflow/internal/models"
	_ "github.com/Lllllllleong/ocrflow/internal/ocr/tesseract"
	"github.com/Lllllllleong/ocrflow/internal/services"
)

var (
	recognizerInstance *services.RecognizerFunction
	once               sync.Once
	initErr            error
)

func init() {
	functions.HTTP("HandleRecognizeDocument", handleRecognizeDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func handleRecognizeDocument(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		recognizerInstance, initErr = services.NewRecognizer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		writeError(w, http.StatusInternalServerError, "failed to initialize service")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	var req models.RecognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body.", "error", err)
		writeError(w, http.StatusBadRequest, "could not parse JSON")
		return
	}

	res, err := recognizerInstance.Process(r.Context(), &req)
	if err != nil {
		// Already logged with context inside Process.
		writeError(w, services.StatusCode(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}
