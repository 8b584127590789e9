package simulator

import "github.com/gorilla/mux"

// Register mounts the workspace routes on an authenticated router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/options", h.GetOptions).Methods("GET")
	r.HandleFunc("/scenarios", h.ListScenarios).Methods("GET")
	r.HandleFunc("/history", h.GetHistory).Methods("GET")

	r.HandleFunc("/workspace", h.GetWorkspace).Methods("GET")
	r.HandleFunc("/workspace/preferences", h.UpdatePreferences).Methods("PUT")
	r.HandleFunc("/workspace/scenario", h.SelectScenario).Methods("POST")
	r.HandleFunc("/workspace/generate", h.GenerateScenario).Methods("POST")
	r.HandleFunc("/workspace/messages", h.SubmitMessage).Methods("POST")
	r.HandleFunc("/workspace/draft", h.UpdateDraft).Methods("PUT")
	r.HandleFunc("/workspace/consultations", h.RequestConsultation).Methods("POST")
	r.HandleFunc("/workspace/evaluate", h.SubmitEvaluation).Methods("POST")
	r.HandleFunc("/workspace/tick", h.Tick).Methods("POST")
	r.HandleFunc("/workspace/retry", h.Retry).Methods("POST")
	r.HandleFunc("/workspace/reset", h.Reset).Methods("POST")
}
