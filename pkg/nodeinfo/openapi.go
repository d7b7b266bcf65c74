/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

// wellKnownNodeInfoReq model
//
// swagger:parameters wellKnownNodeInfoReq
type wellKnownNodeInfoReq struct{} // nolint: unused,deadcode

// wellKnownNodeInfoResp model
//
// swagger:response wellKnownNodeInfoResp
type wellKnownNodeInfoResp struct { // nolint: unused,deadcode
	// in: body
	Body *WellKnownResponse
}

// handle swagger:route Get /.well-known/nodeinfo System wellKnownNodeInfoReq
//
// Returns the NodeInfo endpoints that may be queried to provide general information about this server.
//
// Responses:
//        200: wellKnownNodeInfoResp
func (h *WellKnownHandler) wellKnownNodeInfoGetReq() { // nolint: unused
}

// nodeInfo20Req model
//
// swagger:parameters nodeInfo20Req
type nodeInfo20Req struct{} // nolint: unused,deadcode

// nodeInfo20Resp model
//
// swagger:response nodeInfo20Resp
type nodeInfo20Resp struct { // nolint: unused,deadcode
	// in: body
	Body *NodeInfo
}

//nolint:lll
// handle swagger:route Get /nodeinfo/2.0 System nodeInfo20Req
//
// The NodeInfo endpoints provide general information about this server, including the software name and version and the number of local posts and comments. This endpoint returns a version 2.0 response.
//
// Responses:
//        200: nodeInfo20Resp
func (h *Handler) nodeInfo20GetReq() { // nolint: unused
}

// nodeInfo21Req model
//
// swagger:parameters nodeInfo21Req
type nodeInfo21Req struct{} // nolint: unused,deadcode

// nodeInfo21Resp model
//
// swagger:response nodeInfo21Resp
type nodeInfo21Resp struct { // nolint: unused,deadcode
	// in: body
	Body *NodeInfo
}

//nolint:lll
// handle swagger:route Get /nodeinfo/2.1 System nodeInfo21Req
//
// The NodeInfo endpoints provide general information about this server, including the software name and version and the number of local posts and comments. This endpoint returns a version 2.1 response.
//
// Responses:
//        200: nodeInfo21Resp
func (h *Handler) nodeInfo21GetReq() { // nolint: unused
}
