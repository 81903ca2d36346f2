// Copyright 2015 The kadcore Authors
// This file is part of the kadcore library.
//
// The kadcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The kadcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the kadcore library. If not, see <http://www.gnu.org/licenses/>.

package routing

import "github.com/mod/kadcore/logger"

var mlog = logger.NewLogger("routing")

var mlogRoutingAdd = &logger.MLogT{
	Description: "Called when a node is added to a routing bin.",
	Receiver:    "ROUTING",
	Verb:        "ADD",
	Subject:     "NODE",
	Details: []logger.MLogDetailT{
		{Owner: "NODE", Key: "ID", Value: "STRING"},
		{Owner: "BIN", Key: "PREFIX", Value: "STRING"},
		{Owner: "BIN", Key: "LEN", Value: "INT"},
	},
}

var mlogRoutingSplit = &logger.MLogT{
	Description: "Called when a leaf zone splits into two children.",
	Receiver:    "ROUTING",
	Verb:        "SPLIT",
	Subject:     "ZONE",
	Details: []logger.MLogDetailT{
		{Owner: "ZONE", Key: "PREFIX", Value: "STRING"},
		{Owner: "ZONE", Key: "DEPTH", Value: "INT"},
	},
}

var mlogRoutingConsolidate = &logger.MLogT{
	Description: "Called when two sibling zones merge back into one leaf.",
	Receiver:    "ROUTING",
	Verb:        "CONSOLIDATE",
	Subject:     "ZONE",
	Details: []logger.MLogDetailT{
		{Owner: "ZONE", Key: "PREFIX", Value: "STRING"},
		{Owner: "ZONE", Key: "DEPTH", Value: "INT"},
	},
}

var mlogRoutingRemove = &logger.MLogT{
	Description: "Called when a node is removed from the routing tree.",
	Receiver:    "ROUTING",
	Verb:        "REMOVE",
	Subject:     "NODE",
	Details: []logger.MLogDetailT{
		{Owner: "NODE", Key: "ID", Value: "STRING"},
	},
}

func init() {
	logger.MLogRegisterAvailable("routing", []*logger.MLogT{
		mlogRoutingAdd, mlogRoutingSplit, mlogRoutingConsolidate, mlogRoutingRemove,
	})
}
