package repository

var SetStatusFrom = (*InstanceRepository).setStatusFrom
