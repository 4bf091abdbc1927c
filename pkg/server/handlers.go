package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DavidMGG/geneaflow/pkg/geneaflow"
	"github.com/DavidMGG/geneaflow/pkg/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	persons, _ := s.db.Store().PersonCount()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
		"requests": s.requestCount.Load(),
		"errors":   s.errorCount.Load(),
		"persons":  persons,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Username == "" {
		s.writeError(w, http.StatusBadRequest, "username required")
		return
	}
	user, err := s.auth.Register(req.Username, req.Email, req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	token, user, err := s.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	user, err := s.auth.GetUserByID(claims.UserID())
	if err != nil {
		// Token is valid but the account is gone (or auth is disabled):
		// answer from the claims alone.
		s.writeJSON(w, http.StatusOK, map[string]string{
			"id":       claims.Sub,
			"username": claims.Username,
			"email":    claims.Email,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	claims := claimsFrom(r)
	if err := s.auth.ChangePassword(claims.Username, req.OldPassword, req.NewPassword); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (s *Server) handleCreateTree(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	tree, err := s.db.CreateTree(actorFrom(r), req.Name, req.Description)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tree)
}

func (s *Server) handleListTrees(w http.ResponseWriter, r *http.Request) {
	trees, err := s.db.ListTrees(actorFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trees)
}

func treeID(r *http.Request) storage.TreeID {
	return storage.TreeID(r.PathValue("treeID"))
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.db.GetTree(treeID(r), actorFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleRenameTree(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	tree, err := s.db.RenameTree(treeID(r), actorFrom(r), req.Name, req.Description)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleDeleteTree(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteTree(treeID(r), actorFrom(r)); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "tree deleted"})
}

func (s *Server) handleExportTree(w http.ResponseWriter, r *http.Request) {
	export, err := s.db.ExportTree(treeID(r), actorFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.db.Search(treeID(r), actorFrom(r), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if results == nil {
		results = []geneaflow.SearchResult{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	collabs, err := s.db.ListCollaborators(treeID(r), actorFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, collabs)
}

func (s *Server) handleInviteCollaborator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	tree, err := s.db.InviteCollaborator(treeID(r), actorFrom(r), storage.UserID(req.UserID), storage.Role(req.Role))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tree)
}

func (s *Server) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	userID := storage.UserID(r.PathValue("userID"))
	tree, err := s.db.RemoveCollaborator(treeID(r), actorFrom(r), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var in geneaflow.PersonInput
	if err := decode(r, &in); err != nil {
		s.fail(w, err)
		return
	}
	person, err := s.db.CreatePerson(treeID(r), actorFrom(r), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, person)
}

func (s *Server) handleListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := s.db.ListPersons(treeID(r), actorFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, persons)
}

func personID(r *http.Request) storage.PersonID {
	return storage.PersonID(r.PathValue("personID"))
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	person, err := s.db.GetPerson(treeID(r), actorFrom(r), personID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, person)
}

func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	var in geneaflow.PersonInput
	if err := decode(r, &in); err != nil {
		s.fail(w, err)
		return
	}
	person, err := s.db.UpdatePerson(treeID(r), actorFrom(r), personID(r), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, person)
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := s.db.SoftDeletePerson(treeID(r), actorFrom(r), personID(r)); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "person deleted"})
}

func (s *Server) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	var in geneaflow.RelationshipInput
	if err := decode(r, &in); err != nil {
		s.fail(w, err)
		return
	}
	rel, err := s.db.CreateRelationship(treeID(r), actorFrom(r), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	rels, err := s.db.ListRelationships(treeID(r), actorFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rels)
}

func (s *Server) handleGetRelationship(w http.ResponseWriter, r *http.Request) {
	relID := storage.RelationshipID(r.PathValue("relID"))
	rel, err := s.db.GetRelationship(treeID(r), actorFrom(r), relID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleDeleteRelationship(w http.ResponseWriter, r *http.Request) {
	relID := storage.RelationshipID(r.PathValue("relID"))
	if err := s.db.DeleteRelationship(treeID(r), actorFrom(r), relID); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "relationship deleted"})
}
