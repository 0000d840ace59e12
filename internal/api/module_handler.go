package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"neurodata/internal/domain/canvas"
	"neurodata/internal/domain/module"
	applog "neurodata/internal/platform/log"
)

// ModuleHandler 自定义模块 API 处理器
type ModuleHandler struct {
	registry *module.Registry
}

// NewModuleHandler 创建处理器
func NewModuleHandler(registry *module.Registry) *ModuleHandler {
	return &ModuleHandler{registry: registry}
}

// RegisterRoutes 注册路由
func (h *ModuleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/modules", func(r chi.Router) {
		r.Get("/", h.ListModules)
		r.Post("/", h.SaveModule)
		r.Delete("/{id}", h.DeleteModule)
	})
}

// ListModules 按保存顺序返回全部模块，支持 ?category= 过滤。
func (h *ModuleHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	var defs []module.CustomModuleDefinition
	if category := r.URL.Query().Get("category"); category != "" {
		defs = h.registry.ListByCategory(category)
	} else {
		defs = h.registry.List()
	}
	if defs == nil {
		defs = []module.CustomModuleDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"modules": defs})
}

// saveModuleRequest 两种保存方式：直接给定义，或给画布节点由服务端派生。
type saveModuleRequest struct {
	Definition *module.CustomModuleDefinition `json:"definition,omitempty"`
	Node       *canvas.Node                   `json:"node,omitempty"`
}

// SaveModule 保存模块。同名模块（区分大小写）返回已有定义。
func (h *ModuleHandler) SaveModule(w http.ResponseWriter, r *http.Request) {
	var req saveModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var def module.CustomModuleDefinition
	switch {
	case req.Node != nil:
		def = module.FromNode(*req.Node)
	case req.Definition != nil:
		def = *req.Definition
		if def.ID == "" {
			def.ID = uuid.New().String()
		}
		if def.CreatedAt.IsZero() {
			def.CreatedAt = time.Now().UTC()
		}
	default:
		writeError(w, http.StatusBadRequest, "definition or node is required")
		return
	}

	saved, err := h.registry.Save(r.Context(), def)
	if err != nil {
		applog.Error("❌ 模块保存失败", "name", def.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteModule 删除模块。
func (h *ModuleHandler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, module.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		applog.Error("❌ 模块删除失败", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete module")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
