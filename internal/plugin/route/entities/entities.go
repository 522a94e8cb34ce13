// Package entities exposes the generic entity CRUD surface under /v1/entities.
// Every route is tenant-scoped via the X-Tenant-ID header.
package entities

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagedesk/booking-service/internal/entity"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/security"
)

// MountRoutes mounts entity routes on the given router. Called after store
// initialization so the manager is available.
func MountRoutes(r *gin.Engine, mgr *entity.Manager) {
	tenant := security.TenantMiddleware()

	g := r.Group("/v1", tenant)

	g.POST("/entities/:type", func(c *gin.Context) {
		createEntity(c, mgr)
	})
	g.GET("/entities/:type", func(c *gin.Context) {
		listEntities(c, mgr)
	})
	g.GET("/entities/:type/:id", func(c *gin.Context) {
		getEntity(c, mgr)
	})
	g.PATCH("/entities/:type/:id", func(c *gin.Context) {
		updateEntity(c, mgr)
	})
	g.DELETE("/entities/:type/:id", func(c *gin.Context) {
		deleteEntity(c, mgr)
	})
	g.GET("/entities/:type/:id/relations/:relation", func(c *gin.Context) {
		listRelated(c, mgr)
	})
}

func createEntity(c *gin.Context, mgr *entity.Manager) {
	tenantID := security.GetTenantID(c)
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e, warnings, err := mgr.Create(c.Request.Context(), c.Param("type"), tenantID, data)
	if err != nil {
		handleError(c, err)
		return
	}
	body := gin.H{"data": e}
	if len(warnings) > 0 {
		body["warnings"] = warnings
	}
	c.JSON(http.StatusCreated, body)
}

func listEntities(c *gin.Context, mgr *entity.Manager) {
	tenantID := security.GetTenantID(c)

	q := registrystore.Query{
		AfterCursor: queryPtr(c, "afterCursor"),
		Limit:       queryInt(c, "limit", 20),
	}
	if field, id := c.Query("relatedField"), c.Query("relatedId"); field != "" && id != "" {
		q.RelatedTo = &registrystore.RelatedFilter{Field: field, ID: id}
	}
	for k, vs := range c.Request.URL.Query() {
		switch k {
		case "afterCursor", "limit", "relatedField", "relatedId":
		default:
			if len(vs) > 0 {
				if q.Filter == nil {
					q.Filter = map[string]any{}
				}
				q.Filter[k] = vs[0]
			}
		}
	}

	ents, cursor, err := mgr.Search(c.Request.Context(), c.Param("type"), q, tenantID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ents, "afterCursor": cursor})
}

func getEntity(c *gin.Context, mgr *entity.Manager) {
	tenantID := security.GetTenantID(c)
	e, err := mgr.Get(c.Request.Context(), c.Param("type"), c.Param("id"), tenantID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": e})
}

func updateEntity(c *gin.Context, mgr *entity.Manager) {
	tenantID := security.GetTenantID(c)
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e, warnings, err := mgr.Update(c.Request.Context(), c.Param("type"), c.Param("id"), tenantID, patch)
	if err != nil {
		handleError(c, err)
		return
	}
	body := gin.H{"data": e}
	if len(warnings) > 0 {
		body["warnings"] = warnings
	}
	c.JSON(http.StatusOK, body)
}

func deleteEntity(c *gin.Context, mgr *entity.Manager) {
	tenantID := security.GetTenantID(c)
	cascade := c.Query("cascade") == "true"

	err := mgr.Delete(c.Request.Context(), c.Param("type"), c.Param("id"), tenantID, cascade)
	if err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listRelated(c *gin.Context, mgr *entity.Manager) {
	tenantID := security.GetTenantID(c)
	e, err := mgr.Get(c.Request.Context(), c.Param("type"), c.Param("id"), tenantID)
	if err != nil {
		handleError(c, err)
		return
	}
	related, err := mgr.ResolveRelated(c.Request.Context(), e, c.Param("relation"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": related})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var unknownType *registrystore.UnknownTypeError
	var validation *registrystore.ValidationError
	var tenantMismatch *registrystore.TenantMismatchError
	var related *registrystore.RelatedEntitiesExistError
	var conflict *registrystore.ConflictError
	var unavailable *registrystore.StoreUnavailableError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &unknownType):
		c.JSON(http.StatusNotFound, gin.H{"code": "unknown_type", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "violations": validation.Violations})
	case errors.As(err, &tenantMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"code": "tenant_mismatch", "error": err.Error()})
	case errors.As(err, &related):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "related_entities_exist",
			"error":   err.Error(),
			"refType": related.RefType,
			"sample":  related.Sample,
			"total":   related.Total,
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": err.Error()})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "store_unavailable", "error": "store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryPtr(c *gin.Context, key string) *string {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return def
	}
	return i
}
