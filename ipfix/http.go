// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ipfixgen/common/helpers"
)

func (c *Component) registerHTTPHandlers() {
	api := c.d.HTTP.GinRouter.Group("/api/v0/ipfix")
	api.GET("/clients", c.clientsHandlerFunc)
	api.GET("/clients/:client/generators", c.generatorsHandlerFunc)
	api.POST("/clients/:client/generators/:generator", c.generatorHandlerFunc)
	api.POST("/clients/:client/state", c.stateHandlerFunc)
	api.GET("/clients/:client/exporter", c.exporterHandlerFunc)
	api.GET("/clients/:client/counters", c.countersHandlerFunc)
	api.DELETE("/clients/:client/counters", c.clearCountersHandlerFunc)
	api.POST("/profile", c.loadProfileHandlerFunc)
	api.DELETE("/profile", c.removeProfileHandlerFunc)
	api.POST("/push", c.pushHandlerFunc)
}

// errorResponse turns an error into an HTTP status code and a JSON
// message.
func errorResponse(gc *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownClient), errors.Is(err, ErrUnknownGenerator):
		status = http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedFieldKind),
		errors.Is(err, ErrConfigLoad), errors.Is(err, ErrTransport):
		status = http.StatusBadRequest
	}
	gc.JSON(status, gin.H{"message": helpers.Capitalize(err.Error())})
}

func (c *Component) clientsHandlerFunc(gc *gin.Context) {
	gc.JSON(http.StatusOK, gin.H{"clients": c.Clients()})
}

func (c *Component) generatorsHandlerFunc(gc *gin.Context) {
	info, err := c.GeneratorsInfo(gc.Param("client"))
	if err != nil {
		errorResponse(gc, err)
		return
	}
	gc.JSON(http.StatusOK, info)
}

type generatorInput struct {
	Enable       *bool   `json:"enable"`
	TemplateRate float64 `json:"template_rate" binding:"gte=0"`
	Rate         float64 `json:"rate" binding:"gte=0"`
}

func (c *Component) generatorHandlerFunc(gc *gin.Context) {
	var input generatorInput
	if err := gc.ShouldBindJSON(&input); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"message": helpers.Capitalize(err.Error())})
		return
	}
	client, name := gc.Param("client"), gc.Param("generator")
	if err := c.SetGeneratorRate(client, name, input.TemplateRate, input.Rate); err != nil {
		errorResponse(gc, err)
		return
	}
	if input.Enable != nil {
		if err := c.EnableGenerator(client, name, *input.Enable); err != nil {
			errorResponse(gc, err)
			return
		}
	}
	info, _ := c.GeneratorsInfo(client)
	gc.JSON(http.StatusOK, info[name])
}

type stateInput struct {
	Enable *bool `json:"enable" binding:"required"`
}

func (c *Component) stateHandlerFunc(gc *gin.Context) {
	var input stateInput
	if err := gc.ShouldBindJSON(&input); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"message": helpers.Capitalize(err.Error())})
		return
	}
	if err := c.EnableClient(gc.Param("client"), *input.Enable); err != nil {
		errorResponse(gc, err)
		return
	}
	gc.JSON(http.StatusOK, gin.H{"enable": *input.Enable})
}

func (c *Component) exporterHandlerFunc(gc *gin.Context) {
	info, err := c.ExporterInfo(gc.Param("client"))
	if err != nil {
		errorResponse(gc, err)
		return
	}
	gc.JSON(http.StatusOK, info)
}

func (c *Component) countersHandlerFunc(gc *gin.Context) {
	counters, err := c.Counters(gc.Param("client"))
	if err != nil {
		errorResponse(gc, err)
		return
	}
	gc.JSON(http.StatusOK, counters)
}

func (c *Component) clearCountersHandlerFunc(gc *gin.Context) {
	client := gc.Param("client")
	if err := c.ClearCounters(client); err != nil {
		errorResponse(gc, err)
		return
	}
	counters, _ := c.Counters(client)
	gc.JSON(http.StatusOK, counters)
}

func (c *Component) loadProfileHandlerFunc(gc *gin.Context) {
	input, err := gc.GetRawData()
	if err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"message": helpers.Capitalize(err.Error())})
		return
	}
	profile, err := ParseProfile(input)
	if err != nil {
		errorResponse(gc, err)
		return
	}
	if err := c.LoadProfile(profile); err != nil {
		errorResponse(gc, err)
		return
	}
	gc.JSON(http.StatusOK, gin.H{"clients": c.Clients()})
}

func (c *Component) removeProfileHandlerFunc(gc *gin.Context) {
	if err := c.RemoveProfile(); err != nil {
		errorResponse(gc, err)
		return
	}
	gc.JSON(http.StatusOK, gin.H{"clients": []string{}})
}

func (c *Component) pushHandlerFunc(gc *gin.Context) {
	var input PushConfiguration
	if err := gc.ShouldBindJSON(&input); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"message": helpers.Capitalize(err.Error())})
		return
	}
	if err := c.Push(input); err != nil {
		errorResponse(gc, err)
		return
	}
	gc.JSON(http.StatusOK, gin.H{"dir": input.Dir, "dst_url": input.DstURL})
}
