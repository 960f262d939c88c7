package routes

import (
	"github.com/gorilla/mux"

	"ledgernote/apiserver/controllers"
	"ledgernote/apiserver/middleware"
)

// Register wires every handler onto r.
func Register(r *mux.Router, uc *controllers.UploadController) {
	r.Use(middleware.Logger)
	r.HandleFunc("/api/upload/prepare", uc.PrepareBootstrap).Methods("POST")
	r.HandleFunc("/api/upload/run", uc.RunFromBootstrap).Methods("POST")
	r.HandleFunc("/api/upload/jobs", uc.JobStatus).Methods("GET")
	r.HandleFunc("/api/upload/senders", uc.Senders).Methods("GET")
	r.HandleFunc("/api/payload", uc.Read).Methods("GET")
}
