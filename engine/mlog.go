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

package engine

import "github.com/mod/kadcore/logger"

var (
	mlogSendError = &logger.MLogT{
		Receiver: "ENGINE", Verb: "SEND", Subject: "PACKET",
		Details: []logger.MLogDetailT{{Owner: "ENGINE", Key: "ERROR", Value: "STRING"}},
	}
	mlogCommand = &logger.MLogT{
		Receiver: "ENGINE", Verb: "HANDLE", Subject: "COMMAND",
		Details: []logger.MLogDetailT{{Owner: "ENGINE", Key: "NAME", Value: "STRING"}},
	}
	mlogTerminate = &logger.MLogT{
		Receiver: "ENGINE", Verb: "RECEIVE", Subject: "TERMINATE",
	}
)

func init() {
	logger.MLogRegisterAvailable("engine", []*logger.MLogT{mlogSendError, mlogCommand, mlogTerminate})
}
