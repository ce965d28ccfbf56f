// Package main is a module which implements landmark recognition
package main

import (
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/vision"

	"github.com/viam-modules/landmark-recognition/landmark"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: vision.API, Model: landmark.Model},
	)
}
