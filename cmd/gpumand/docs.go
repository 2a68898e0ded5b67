package main

// General API documentation annotations for swaggo. Generated docs are not
// part of this module.
//
// @title           gpumand API
// @version         1.0
// @description     HTTP API for GPU VRAM accounting, service lifecycle, and priority preemption.
//
// @contact.name   gpuman maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
