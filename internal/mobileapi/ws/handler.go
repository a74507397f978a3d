// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ws

import (
	"github.com/gin-gonic/gin"

	"github.com/coheara/engine/internal/mobileapi/wsticket"
	"github.com/coheara/engine/pkg/cherr"
)

// Handler upgrades the notification socket. It intentionally sits outside
// the rate-limit/nonce/auth/audit chain: the ticket itself, not a bearer
// token, is the credential, per spec §4.10's "the upgrade query carries
// the ticket instead of exposing the bearer token in the URL."
func Handler(hub *Hub, minter *wsticket.Minter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket := c.Query("ticket")
		if ticket == "" {
			c.AbortWithStatusJSON(cherr.HTTPStatus(cherr.AuthRequired), cherr.Body{
				Error: cherr.BodyError{Code: string(cherr.AuthRequired), Message: "missing ticket"},
			})
			return
		}
		deviceID, err := minter.Validate(ticket, "")
		if err != nil {
			status, body := cherr.ToBody(err)
			c.AbortWithStatusJSON(status, body)
			return
		}

		conn, err := hub.Upgrade(c.Writer, c.Request, deviceID)
		if err != nil {
			return
		}
		hub.Serve(deviceID, conn)
	}
}
